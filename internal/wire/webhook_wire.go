package wire

import (
	"stay-reservations/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

// Webhooks authenticate by signature, not by session.
func wireWebhook(r chi.Router, webhookHandler *adaptor.WebhookHandler) {
	r.Post("/webhook/razorpay", webhookHandler.Razorpay)
}
