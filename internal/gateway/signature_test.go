package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignPayment_KnownVector(t *testing.T) {
	// echo -n "order_1|pay_1" | openssl dgst -sha256 -hmac secret
	got := SignPayment("secret", "order_1", "pay_1")
	assert.Equal(t, "52115a0d3400de9e86aade1f1b6eba9e8974604f4e267a9e9a16633a4c8dd2cb", got)
	assert.NotEqual(t, got, SignPayment("secret", "order_1", "pay_2"))
	assert.NotEqual(t, got, SignPayment("other", "order_1", "pay_1"))
}

func TestVerifyPayment(t *testing.T) {
	sig := SignPayment("secret", "order_1", "pay_1")

	assert.True(t, verifyPayment("secret", "order_1", "pay_1", sig))
	assert.False(t, verifyPayment("secret", "order_1", "pay_9", sig))
	assert.False(t, verifyPayment("wrong", "order_1", "pay_1", sig))
	assert.False(t, verifyPayment("secret", "order_1", "pay_1", "not-hex"))
	assert.False(t, verifyPayment("secret", "order_1", "pay_1", ""))
	assert.False(t, verifyPayment("", "order_1", "pay_1", sig))
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := SignWebhook("whsec", body)

	m := NewMock("key", "secret", "whsec")
	assert.True(t, m.VerifyWebhookSignature(body, sig))
	assert.False(t, m.VerifyWebhookSignature([]byte(`{"event":"payment.failed"}`), sig))
	assert.False(t, m.VerifyWebhookSignature(body, sig[:10]))
}
