package memory

import "fmt"

func errNotFound(kind, key string) error {
	return fmt.Errorf("%s %s not found", kind, key)
}

func errDuplicate(kind, key string) error {
	return fmt.Errorf("%s %s already exists", kind, key)
}
