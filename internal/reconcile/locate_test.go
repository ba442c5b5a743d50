package reconcile_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

func TestResolvePledge(t *testing.T) {
	bySub := &pledge.Pledge{ID: uuid.New(), SubscriptionID: "sub_1"}
	byAttempt := &pledge.Pledge{ID: uuid.New(), AttemptID: "att_1"}
	byCustomerOther := &pledge.Pledge{ID: uuid.New(), CustomerID: "cus_1", SubscriptionID: "sub_other"}
	byCustomer := &pledge.Pledge{ID: uuid.New(), CustomerID: "cus_1"}

	type testCase struct {
		name         string
		ids          reconcile.Identifiers
		candidates   reconcile.PledgeCandidates
		want         *pledge.Pledge
		wantStrategy reconcile.Strategy
	}

	tests := []testCase{
		{
			name:         "SubscriptionWins",
			ids:          reconcile.Identifiers{SubscriptionID: "sub_1"},
			candidates:   reconcile.PledgeCandidates{BySubscription: bySub, ByAttempt: byAttempt, ByCustomer: byCustomer},
			want:         bySub,
			wantStrategy: reconcile.StrategySubscription,
		},
		{
			name:         "AttemptBeforeCustomer",
			ids:          reconcile.Identifiers{SubscriptionID: "sub_new"},
			candidates:   reconcile.PledgeCandidates{ByAttempt: byAttempt, ByCustomer: byCustomer},
			want:         byAttempt,
			wantStrategy: reconcile.StrategyAttempt,
		},
		{
			name:         "CustomerFallback",
			ids:          reconcile.Identifiers{CustomerID: "cus_1"},
			candidates:   reconcile.PledgeCandidates{ByCustomer: byCustomer},
			want:         byCustomer,
			wantStrategy: reconcile.StrategyCustomer,
		},
		{
			name:       "CustomerWithOtherSubscription",
			ids:        reconcile.Identifiers{CustomerID: "cus_1", SubscriptionID: "sub_1"},
			candidates: reconcile.PledgeCandidates{ByCustomer: byCustomerOther},
		},
		{
			name: "NothingFound",
			ids:  reconcile.Identifiers{InvoiceID: "in_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy := reconcile.ResolvePledge(tt.ids, tt.candidates)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantStrategy, strategy)
		})
	}
}

func TestResolveTransaction(t *testing.T) {
	pledgeID := uuid.New()
	now := time.Now()

	canonical := &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, InvoiceID: "in_1", Status: transaction.StatusSucceeded}
	byPI := &transaction.Transaction{ID: uuid.New(), PaymentIntentID: "pi_1", Status: transaction.StatusPending}
	byCharge := &transaction.Transaction{ID: uuid.New(), ChargeID: "ch_1", Status: transaction.StatusPending}

	older := &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, Status: transaction.StatusPending, Amount: 1000, CreatedAt: now.Add(-time.Hour)}
	newer := &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, Status: transaction.StatusPending, Amount: 1000, CreatedAt: now}
	exactAttempt := &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, AttemptID: "att_1", Status: transaction.StatusPending, CreatedAt: now.Add(-2 * time.Hour)}
	otherInvoice := &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, InvoiceID: "in_9", Status: transaction.StatusPending, CreatedAt: now}
	otherPI := &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, PaymentIntentID: "pi_9", Status: transaction.StatusPending, CreatedAt: now}
	otherAmount := &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, Amount: 5000, Status: transaction.StatusPending, CreatedAt: now}
	failed := &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, Status: transaction.StatusFailed, CreatedAt: now}

	type testCase struct {
		name         string
		ids          reconcile.Identifiers
		hint         reconcile.Hint
		candidates   reconcile.Candidates
		want         *transaction.Transaction
		wantStrategy reconcile.Strategy
	}

	tests := []testCase{
		{
			name: "InvoicePairIsCanonical",
			ids:  reconcile.Identifiers{InvoiceID: "in_1", PaymentIntentID: "pi_1"},
			candidates: reconcile.Candidates{
				ByInvoice: canonical, ByPaymentIntent: byPI, Placeholders: []*transaction.Transaction{newer},
			},
			want:         canonical,
			wantStrategy: reconcile.StrategyInvoice,
		},
		{
			name:         "StrongKeyBeatsPlaceholder",
			ids:          reconcile.Identifiers{InvoiceID: "in_2", PaymentIntentID: "pi_1"},
			candidates:   reconcile.Candidates{ByPaymentIntent: byPI, Placeholders: []*transaction.Transaction{newer}},
			want:         byPI,
			wantStrategy: reconcile.StrategyPaymentIntent,
		},
		{
			name:         "ChargeAfterPaymentIntent",
			ids:          reconcile.Identifiers{ChargeID: "ch_1"},
			candidates:   reconcile.Candidates{ByCharge: byCharge},
			want:         byCharge,
			wantStrategy: reconcile.StrategyCharge,
		},
		{
			name:         "NewestPlaceholder",
			ids:          reconcile.Identifiers{InvoiceID: "in_2"},
			hint:         reconcile.Hint{Amount: 1000},
			candidates:   reconcile.Candidates{Placeholders: []*transaction.Transaction{older, newer}},
			want:         newer,
			wantStrategy: reconcile.StrategyPlaceholder,
		},
		{
			name:         "ExactAttemptFirst",
			ids:          reconcile.Identifiers{InvoiceID: "in_2"},
			hint:         reconcile.Hint{AttemptID: "att_1"},
			candidates:   reconcile.Candidates{Placeholders: []*transaction.Transaction{newer, exactAttempt}},
			want:         exactAttempt,
			wantStrategy: reconcile.StrategyPlaceholder,
		},
		{
			name: "IneligiblePlaceholdersCreate",
			ids:  reconcile.Identifiers{InvoiceID: "in_2", PaymentIntentID: "pi_2"},
			hint: reconcile.Hint{Amount: 1000},
			candidates: reconcile.Candidates{
				Placeholders: []*transaction.Transaction{otherInvoice, otherPI, otherAmount, failed},
			},
			wantStrategy: reconcile.StrategyCreate,
		},
		{
			name:         "ZeroInvoiceSkipsPricedPlaceholder",
			ids:          reconcile.Identifiers{InvoiceID: "in_0"},
			hint:         reconcile.Hint{Amount: 0, ExactAmount: true},
			candidates:   reconcile.Candidates{Placeholders: []*transaction.Transaction{newer}},
			wantStrategy: reconcile.StrategyCreate,
		},
		{
			name:         "UnstatedAmountAdopts",
			ids:          reconcile.Identifiers{InvoiceID: "in_2"},
			candidates:   reconcile.Candidates{Placeholders: []*transaction.Transaction{newer}},
			want:         newer,
			wantStrategy: reconcile.StrategyPlaceholder,
		},
		{
			name:         "NoIdentifiers",
			ids:          reconcile.Identifiers{CustomerID: "cus_1"},
			wantStrategy: reconcile.StrategyNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconcile.ResolveTransaction(tt.ids, tt.hint, tt.candidates)
			assert.Equal(t, tt.wantStrategy, got.Strategy)
			assert.Equal(t, tt.want, got.Transaction)
		})
	}
}

func TestAbsorbablePlaceholder(t *testing.T) {
	pledgeID := uuid.New()
	otherPledge := uuid.New()

	initial := &transaction.Transaction{
		ID: uuid.New(), PledgeID: &pledgeID, Type: transaction.TypeSubscriptionInitial,
		AttemptID: "att_1", Amount: 1000, Status: transaction.StatusPending,
	}
	oneTime := &transaction.Transaction{
		ID: uuid.New(), Type: transaction.TypeOneTime, AttemptID: "att_2", Amount: 2000, Status: transaction.StatusPending,
	}
	keyed := &transaction.Transaction{
		ID: uuid.New(), PledgeID: &pledgeID, Type: transaction.TypeSubscriptionInitial,
		PaymentIntentID: "pi_9", Amount: 1000, Status: transaction.StatusPending,
	}
	foreign := &transaction.Transaction{
		ID: uuid.New(), PledgeID: &otherPledge, Type: transaction.TypeSubscriptionInitial,
		Amount: 1000, Status: transaction.StatusPending,
	}

	chargeRow := func() *transaction.Transaction {
		return &transaction.Transaction{
			ID: uuid.New(), Type: transaction.TypeOneTime, PaymentIntentID: "pi_1", ChargeID: "ch_1", Status: transaction.StatusPending,
		}
	}

	type testCase struct {
		name       string
		row        *transaction.Transaction
		hint       reconcile.Hint
		candidates []*transaction.Transaction
		want       *transaction.Transaction
	}

	tests := []testCase{
		{
			name:       "InvoiceTakesOverPledgePlaceholder",
			row:        chargeRow(),
			hint:       reconcile.Hint{Amount: 1000, ExactAmount: true, AttemptID: "att_1", Type: transaction.TypeSubscriptionInitial},
			candidates: []*transaction.Transaction{keyed, initial},
			want:       initial,
		},
		{
			name:       "OneTimeNeedsSameAttempt",
			row:        chargeRow(),
			hint:       reconcile.Hint{Amount: 2000, AttemptID: "att_9", Type: transaction.TypeOneTime},
			candidates: []*transaction.Transaction{oneTime},
		},
		{
			name:       "OneTimeSameAttempt",
			row:        chargeRow(),
			hint:       reconcile.Hint{Amount: 2000, AttemptID: "att_2", Type: transaction.TypeOneTime},
			candidates: []*transaction.Transaction{oneTime},
			want:       oneTime,
		},
		{
			name:       "KindMustMatch",
			row:        chargeRow(),
			hint:       reconcile.Hint{Amount: 2000, AttemptID: "att_2", Type: transaction.TypeSubscriptionRecurring},
			candidates: []*transaction.Transaction{oneTime},
		},
		{
			name:       "OtherPledge",
			row:        &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, PaymentIntentID: "pi_1", Type: transaction.TypeSubscriptionInitial},
			hint:       reconcile.Hint{Amount: 1000, Type: transaction.TypeSubscriptionInitial},
			candidates: []*transaction.Transaction{foreign},
		},
		{
			name:       "UnknownKind",
			row:        chargeRow(),
			hint:       reconcile.Hint{Amount: 1000},
			candidates: []*transaction.Transaction{initial},
		},
		{
			name:       "ItselfIsNotAbsorbed",
			row:        initial,
			hint:       reconcile.Hint{Amount: 1000, Type: transaction.TypeSubscriptionInitial},
			candidates: []*transaction.Transaction{initial},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := reconcile.Identifiers{PaymentIntentID: "pi_1", ChargeID: "ch_1"}
			assert.Equal(t, tt.want, reconcile.AbsorbablePlaceholder(tt.row, ids, tt.hint, tt.candidates))
		})
	}
}
