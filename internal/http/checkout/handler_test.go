package checkout_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/donorledger/internal/checkout"
	httpcheckout "github.com/MrJamesThe3rd/donorledger/internal/http/checkout"
	"github.com/MrJamesThe3rd/donorledger/internal/store/memory"
)

func post(t *testing.T, router http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/checkout/attempts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}

	return rec, resp
}

func newRouter() http.Handler {
	router := chi.NewRouter()
	router.Route("/checkout", httpcheckout.NewHandler(checkout.NewService(memory.New())).Routes)

	return router
}

func TestHandler_Begin_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "OneTime",
			body:       `{"attempt_id":"att_1","kind":"one_time","amount":2500,"currency":"EUR","donor_email":"ana@example.org"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Recurring",
			body:       `{"attempt_id":"att_2","kind":"recurring","amount":1000,"currency":"eur","interval":"month"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "RecurringWithoutInterval",
			body:       `{"attempt_id":"att_3","kind":"recurring","amount":1000,"currency":"eur"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "UnknownKind",
			body:       `{"attempt_id":"att_4","kind":"weekly","amount":1000,"currency":"eur"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "ZeroAmount",
			body:       `{"attempt_id":"att_5","kind":"one_time","amount":0,"currency":"eur"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "MissingAttemptID",
			body:       `{"kind":"one_time","amount":100,"currency":"eur"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "BadEmail",
			body:       `{"attempt_id":"att_6","kind":"one_time","amount":100,"currency":"eur","donor_email":"nope"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "NotJSON",
			body:       `attempt_id=att_7`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := post(t, newRouter(), tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_Begin_Idempotent(t *testing.T) {
	router := newRouter()
	body := `{"attempt_id":"att_1","kind":"recurring","amount":1000,"currency":"eur","interval":"month"}`

	rec, first := post(t, router, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "pending", first["status"])
	assert.Equal(t, "incomplete", first["pledge_status"])
	assert.NotEmpty(t, first["pledge_id"])

	rec, second := post(t, router, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first["transaction_id"], second["transaction_id"])
	assert.Equal(t, first["pledge_id"], second["pledge_id"])

	rec, _ = post(t, router, `{"attempt_id":"att_1","kind":"recurring","amount":5000,"currency":"eur","interval":"month"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
