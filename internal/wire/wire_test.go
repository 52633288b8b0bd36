package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository/memory"
	"stay-reservations/internal/gateway"
	"stay-reservations/internal/usecase"
	"stay-reservations/pkg/messaging"
	"stay-reservations/pkg/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	app     *App
	gw      *gateway.Mock
	events  *messaging.Recorder
	token   string
	listing uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	guest := uuid.New()
	token := uuid.New()
	listing := uuid.New()

	store.PutUser(entity.User{Base: entity.Base{ID: guest}, EmailVerified: true, IsActive: true})
	store.PutSession(entity.Session{UserID: guest, Token: token, ExpiresAt: time.Now().Add(time.Hour)})
	policy, _ := entity.DefaultPolicy(entity.PolicyStrict)
	store.PutListing(entity.Listing{
		BaseNoDelete:  entity.BaseNoDelete{ID: listing},
		HostID:        uuid.New(),
		PricePerNight: 4000,
		Currency:      "INR",
		MaxGuests:     3,
		Policy:        policy,
	})

	h := &harness{
		gw:      gateway.NewMock("rzp_test", "key-secret", "webhook-secret"),
		events:  &messaging.Recorder{},
		token:   token.String(),
		listing: listing,
	}
	cfg := &utils.Config{Reservation: utils.ReservationConfig{
		Currency:        "INR",
		HoldWindow:      15 * time.Minute,
		EditWindowHours: utils.MinEditWindowHours,
	}}
	h.app = Wiring(store.Repository(), usecase.Deps{Gateway: h.gw, Events: h.events}, cfg, zap.NewNop())
	return h
}

func (h *harness) call(t *testing.T, method, path string, auth bool, body []byte, headers map[string]string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.app.Router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newHarness(t)
	id := uuid.NewString()

	routes := []struct{ method, path string }{
		{http.MethodPost, "/create-order"},
		{http.MethodPost, "/verify-payment"},
		{http.MethodGet, "/reservations"},
		{http.MethodGet, "/reservations/" + id},
		{http.MethodPut, "/edit-reservation/" + id},
		{http.MethodPost, "/cancel-reservation/" + id},
		{http.MethodGet, "/refund-status/" + id},
		{http.MethodGet, "/cancellation-info/" + id},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			code, _ := h.call(t, rt.method, rt.path, false, nil, nil)
			assert.Equal(t, http.StatusUnauthorized, code)
		})
	}
}

func TestBookingLifecycle(t *testing.T) {
	h := newHarness(t)

	in := time.Now().AddDate(0, 2, 0).Format(utils.DateLayout)
	out := time.Now().AddDate(0, 2, 3).Format(utils.DateLayout)

	code, body := h.call(t, http.MethodPost, "/listings/"+h.listing.String()+"/quote", false,
		[]byte(fmt.Sprintf(`{"checkIn":%q,"checkOut":%q,"guestCounts":{"adults":2}}`, in, out)), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 12000, body["data"].(map[string]any)["total"])

	code, body = h.call(t, http.MethodPost, "/create-order", true,
		[]byte(fmt.Sprintf(`{"listingId":%q,"checkIn":%q,"checkOut":%q,"guestCounts":{"adults":2}}`, h.listing.String(), in, out)), nil)
	require.Equal(t, http.StatusCreated, code, body)
	order := body["data"].(map[string]any)
	reservationID := order["reservationId"].(string)
	orderID := order["orderId"].(string)

	code, body = h.call(t, http.MethodGet, "/listings/"+h.listing.String()+"/availability?checkIn="+in+"&checkOut="+out, false, nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["data"].(map[string]any)["available"], "held dates are unavailable")

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_cap","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_9","order_id":%q,"notes":[]}}}}`,
		orderID))
	code, body = h.call(t, http.MethodPost, "/webhook/razorpay", false, payload,
		map[string]string{"X-Razorpay-Signature": gateway.SignWebhook("webhook-secret", payload)})
	require.Equal(t, http.StatusOK, code, body)

	code, body = h.call(t, http.MethodGet, "/reservations/"+reservationID, true, nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(entity.ReservationConfirmed), body["data"].(map[string]any)["status"])

	code, body = h.call(t, http.MethodPost, "/cancel-reservation/"+reservationID, true, nil, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 100, body["data"].(map[string]any)["refundPercentage"])

	assert.Equal(t, []string{
		usecase.EventReservationCreated,
		usecase.EventReservationConfirmed,
		usecase.EventReservationCancelled,
		usecase.EventReservationRefundInitiated,
	}, h.events.Types())
	assert.Equal(t, 1, h.gw.Calls("Refund"))
}
