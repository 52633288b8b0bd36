package entity

// User is owned by the identity service; only the fields this module reads.
type User struct {
	Base
	Username      string `db:"username"`
	Email         string `db:"email"`
	EmailVerified bool   `db:"email_verified"`
	IsActive      bool   `db:"is_active"`
}
