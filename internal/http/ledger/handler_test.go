package ledger_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/donorledger/internal/http/ledger"
	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

type mocks struct {
	transactions *transaction.MockRepository
	pledges      *pledge.MockRepository
}

func newRouter(t *testing.T, setup func(m mocks)) http.Handler {
	ctrl := gomock.NewController(t)
	m := mocks{
		transactions: transaction.NewMockRepository(ctrl),
		pledges:      pledge.NewMockRepository(ctrl),
	}

	if setup != nil {
		setup(m)
	}

	h := ledger.NewHandler(transaction.NewService(m.transactions), pledge.NewService(m.pledges))

	router := chi.NewRouter()
	router.Route("/transactions", h.TransactionRoutes)
	router.Route("/pledges", h.PledgeRoutes)

	return router
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	return rec
}

func TestHandler_ListTransactions(t *testing.T) {
	pledgeID := uuid.New()

	type testCase struct {
		name       string
		query      string
		setupMock  func(m mocks)
		wantStatus int
	}

	tests := []testCase{
		{
			name:  "AllFilters",
			query: "?status=succeeded&pledge_id=" + pledgeID.String() + "&start_date=2024-01-01&end_date=2024-02-01",
			setupMock: func(m mocks) {
				m.transactions.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ any, f transaction.ListFilter) ([]*transaction.Transaction, error) {
						require.NotNil(t, f.Status)
						assert.Equal(t, transaction.StatusSucceeded, *f.Status)
						assert.Equal(t, &pledgeID, f.PledgeID)
						assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *f.StartDate)
						assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *f.EndDate)
						return nil, nil
					})
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "BadPledgeID",
			query:      "?pledge_id=nope",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "RepositoryError",
			query: "",
			setupMock: func(m mocks) {
				m.transactions.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newRouter(t, tt.setupMock), "/transactions"+tt.query)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandler_GetTransaction(t *testing.T) {
	id := uuid.New()
	tx := &transaction.Transaction{
		ID:       id,
		Type:     transaction.TypeOneTime,
		Status:   transaction.StatusPartiallyRefunded,
		Amount:   2550,
		Currency: "eur",
		ChargeID: "ch_1",
	}
	refunds := []*transaction.Refund{
		{ID: uuid.New(), ExternalID: "re_1", Amount: 500, Currency: "eur", Status: transaction.RefundSucceeded},
		{ID: uuid.New(), ExternalID: "re_2", Amount: 300, Currency: "eur", Status: transaction.RefundPending},
	}

	router := newRouter(t, func(m mocks) {
		m.transactions.EXPECT().GetTransaction(gomock.Any(), id).Return(tx, nil)
		m.transactions.EXPECT().ListRefunds(gomock.Any(), id).Return(refunds, nil)
		m.transactions.EXPECT().GetTransaction(gomock.Any(), gomock.Not(id)).Return(nil, transaction.ErrNotFound)
	})

	rec := get(router, "/transactions/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AmountDisplay  string `json:"amount_display"`
		RefundedAmount int64  `json:"refunded_amount"`
		Refunds        []struct {
			ExternalID    string `json:"external_id"`
			AmountDisplay string `json:"amount_display"`
		} `json:"refunds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "25.50", body.AmountDisplay)
	assert.Equal(t, int64(500), body.RefundedAmount)
	require.Len(t, body.Refunds, 2)
	assert.Equal(t, "5.00", body.Refunds[0].AmountDisplay)

	assert.Equal(t, http.StatusNotFound, get(router, "/transactions/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/transactions/not-a-uuid").Code)
}

func TestHandler_GetPledge(t *testing.T) {
	id := uuid.New()
	p := &pledge.Pledge{
		ID:       id,
		Status:   pledge.StatusActive,
		Amount:   1000,
		Currency: "jpy",
		Interval: pledge.IntervalMonth,
	}

	router := newRouter(t, func(m mocks) {
		m.pledges.EXPECT().GetPledge(gomock.Any(), id).Return(p, nil)
		m.transactions.EXPECT().ListTransactions(gomock.Any(), transaction.ListFilter{PledgeID: &id}).
			Return([]*transaction.Transaction{
				{ID: uuid.New(), PledgeID: &id, Type: transaction.TypeSubscriptionInitial, Status: transaction.StatusSucceeded, Amount: 1000, Currency: "jpy"},
			}, nil)
		m.pledges.EXPECT().GetPledge(gomock.Any(), gomock.Not(id)).Return(nil, pledge.ErrNotFound)
	})

	rec := get(router, "/pledges/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status        string `json:"status"`
		AmountDisplay string `json:"amount_display"`
		Transactions  []struct {
			Type string `json:"type"`
		} `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "active", body.Status)
	assert.Equal(t, "1000", body.AmountDisplay)
	require.Len(t, body.Transactions, 1)
	assert.Equal(t, "subscription_initial", body.Transactions[0].Type)

	assert.Equal(t, http.StatusNotFound, get(router, "/pledges/"+uuid.NewString()).Code)
}

func TestHandler_ListPledges(t *testing.T) {
	router := newRouter(t, func(m mocks) {
		m.pledges.EXPECT().ListPledges(gomock.Any(), pledge.ListFilter{Status: new(pledge.StatusPastDue), CustomerID: "cus_1"}).
			Return([]*pledge.Pledge{{ID: uuid.New(), Status: pledge.StatusPastDue, Amount: 500, Currency: "usd"}}, nil)
	})

	rec := get(router, "/pledges?status=past_due&customer_id=cus_1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "5.00", body[0]["amount_display"])
}
