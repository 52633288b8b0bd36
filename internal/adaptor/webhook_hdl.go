package adaptor

import (
	"errors"
	"io"
	"net/http"

	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/usecase"
	"stay-reservations/pkg/utils"

	"go.uber.org/zap"
)

const (
	HeaderRazorpaySignature = "X-Razorpay-Signature"
	HeaderRazorpayEventID   = "X-Razorpay-Event-Id"

	maxWebhookBody = 1 << 20
)

type WebhookHandler struct {
	baseHandler
	service usecase.WebhookService
}

func NewWebhookHandler(service usecase.WebhookService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		baseHandler: baseHandler{log: log.With(zap.String("handler", "webhook"))},
		service:     service,
	}
}

// Razorpay handles POST /webhook/razorpay (signature auth). Any non-2xx
// answer makes the gateway redeliver, so only a processing failure returns 500.
func (h *WebhookHandler) Razorpay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.ResponseJSON(w, http.StatusRequestEntityTooLarge, false, "Payload too large", nil, nil)
			return
		}
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), &request.WebhookRequest{
		Body:      body,
		Signature: r.Header.Get(HeaderRazorpaySignature),
		EventID:   r.Header.Get(HeaderRazorpayEventID),
	})
	if err != nil {
		h.handleServiceError(w, err, "handle webhook")
		return
	}

	utils.ResponseSuccess(w, "ok", result)
}
