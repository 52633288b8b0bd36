package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stay-reservations/pkg/utils"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Razorpay is the HTTP client for the Razorpay REST API.
type Razorpay struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string

	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	tracer     trace.Tracer
	log        *zap.Logger
	retryDelay time.Duration
}

func NewRazorpay(cfg utils.RazorpayConfig, log *zap.Logger) *Razorpay {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log = log.With(zap.String("gateway", "razorpay"))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "razorpay",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// provider-side rejections are answers, not outages
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Razorpay{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		client:        &http.Client{Timeout: timeout},
		breaker:       breaker,
		tracer:        otel.Tracer("stay-reservations/gateway"),
		log:           log,
		retryDelay:    300 * time.Millisecond,
	}
}

func (c *Razorpay) KeyID() string {
	return c.keyID
}

func (c *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var order Order
	if err := c.call(ctx, "CreateOrder", http.MethodPost, "/v1/orders", body, &order, true); err != nil {
		return nil, fmt.Errorf("create order for receipt %s: %w", req.Receipt, err)
	}
	return &order, nil
}

// Refund is not retried in-band: a lost response could otherwise refund
// twice. Callers reconcile through FindRefundByReceipt instead.
func (c *Razorpay) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	body := map[string]any{
		"amount":  req.Amount,
		"speed":   "normal",
		"receipt": req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var refund Refund
	path := "/v1/payments/" + url.PathEscape(req.PaymentID) + "/refund"
	if err := c.call(ctx, "Refund", http.MethodPost, path, body, &refund, false); err != nil {
		return nil, fmt.Errorf("refund payment %s: %w", req.PaymentID, err)
	}
	return &refund, nil
}

func (c *Razorpay) FetchRefund(ctx context.Context, paymentID, refundID string) (*Refund, error) {
	var refund Refund
	path := "/v1/payments/" + url.PathEscape(paymentID) + "/refunds/" + url.PathEscape(refundID)
	if err := c.call(ctx, "FetchRefund", http.MethodGet, path, nil, &refund, true); err != nil {
		return nil, fmt.Errorf("fetch refund %s: %w", refundID, err)
	}
	return &refund, nil
}

func (c *Razorpay) FindRefundByReceipt(ctx context.Context, paymentID, receipt string) (*Refund, error) {
	var list struct {
		Items []Refund `json:"items"`
	}
	path := "/v1/payments/" + url.PathEscape(paymentID) + "/refunds?count=100"
	if err := c.call(ctx, "ListRefunds", http.MethodGet, path, nil, &list, true); err != nil {
		return nil, fmt.Errorf("list refunds for payment %s: %w", paymentID, err)
	}

	return pickByReceipt(list.Items, receipt), nil
}

func (c *Razorpay) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verifyPayment(c.keySecret, orderID, paymentID, signature)
}

func (c *Razorpay) VerifyWebhookSignature(body []byte, signature string) bool {
	return verify(c.webhookSecret, body, signature)
}

// call runs one request through the breaker, retrying a single time on
// transient failure when retryable is set.
func (c *Razorpay) call(ctx context.Context, op, method, path string, in, out any, retryable bool) error {
	ctx, span := c.tracer.Start(ctx, "razorpay."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("gateway.operation", op),
	))
	defer span.End()

	attempts := 1
	if retryable {
		attempts = 2
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.log.Warn("Retrying gateway call",
				zap.String("operation", op),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				err = ctx.Err()
				span.SetStatus(codes.Error, err.Error())
				return err
			case <-time.After(c.retryDelay):
			}
		}

		_, err = c.breaker.Execute(func() (interface{}, error) {
			return nil, c.roundTrip(ctx, method, path, in, out)
		})
		if err == nil {
			span.SetAttributes(attribute.Int("gateway.attempts", attempt))
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			break
		}
		if !isTransient(err) {
			break
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.log.Error("Gateway call failed",
		zap.String("operation", op),
		zap.String("path", path),
		zap.Error(err),
	)
	return err
}

func (c *Razorpay) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}
