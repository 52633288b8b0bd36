package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayment returns the checkout signature for orderID|paymentID.
func SignPayment(secret, orderID, paymentID string) string {
	return sign(secret, []byte(orderID+"|"+paymentID))
}

// SignWebhook returns the signature sent in X-Razorpay-Signature for body.
func SignWebhook(secret string, body []byte) string {
	return sign(secret, body)
}

func sign(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify compares in constant time; malformed hex never matches.
func verify(secret string, msg []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hmac.Equal(mac.Sum(nil), got)
}

func verifyPayment(secret, orderID, paymentID, signature string) bool {
	return verify(secret, []byte(orderID+"|"+paymentID), signature)
}
