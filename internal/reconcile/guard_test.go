package reconcile

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// guardTx serves the owner lookups the guard performs from a fixed set of rows.
type guardTx struct {
	Tx
	rows    []*transaction.Transaction
	pledges []*pledge.Pledge
	updated []*transaction.Transaction
}

func (g *guardTx) find(match func(t *transaction.Transaction) bool) *transaction.Transaction {
	for _, t := range g.rows {
		if match(t) {
			return t
		}
	}

	return nil
}

func (g *guardTx) TransactionByPaymentIntent(_ context.Context, id string) (*transaction.Transaction, error) {
	return g.find(func(t *transaction.Transaction) bool { return t.PaymentIntentID == id }), nil
}

func (g *guardTx) TransactionByCharge(_ context.Context, id string) (*transaction.Transaction, error) {
	return g.find(func(t *transaction.Transaction) bool { return t.ChargeID == id }), nil
}

func (g *guardTx) TransactionByInvoice(_ context.Context, pledgeID uuid.UUID, invoiceID string) (*transaction.Transaction, error) {
	return g.find(func(t *transaction.Transaction) bool {
		return t.PledgeID != nil && *t.PledgeID == pledgeID && t.InvoiceID == invoiceID
	}), nil
}

func (g *guardTx) UpdateTransaction(_ context.Context, t *transaction.Transaction) error {
	g.updated = append(g.updated, t)
	return nil
}

func (g *guardTx) PledgeBySubscription(_ context.Context, id string) (*pledge.Pledge, error) {
	for _, p := range g.pledges {
		if p.SubscriptionID == id {
			return p, nil
		}
	}

	return nil, nil
}

func TestGuard_Claim(t *testing.T) {
	pledgeID := uuid.New()
	otherPledge := uuid.New()

	type testCase struct {
		name        string
		rows        []*transaction.Transaction
		target      *transaction.Transaction
		field       Field
		value       string
		want        bool
		wantValue   string
		wantUpdated int
	}

	tests := []testCase{
		{
			name:   "EmptyValue",
			target: &transaction.Transaction{ID: uuid.New()},
			field:  FieldCharge,
		},
		{
			name:      "AlreadyHeld",
			target:    &transaction.Transaction{ID: uuid.New(), ChargeID: "ch_1"},
			field:     FieldCharge,
			value:     "ch_1",
			want:      true,
			wantValue: "ch_1",
		},
		{
			name:      "NeverReassigns",
			target:    &transaction.Transaction{ID: uuid.New(), PaymentIntentID: "pi_1"},
			field:     FieldPaymentIntent,
			value:     "pi_2",
			wantValue: "pi_1",
		},
		{
			name:      "Unowned",
			target:    &transaction.Transaction{ID: uuid.New()},
			field:     FieldPaymentIntent,
			value:     "pi_1",
			want:      true,
			wantValue: "pi_1",
		},
		{
			name:   "OwnedByUnrelatedRow",
			rows:   []*transaction.Transaction{{ID: uuid.New(), PledgeID: &otherPledge, ChargeID: "ch_1"}},
			target: &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, InvoiceID: "in_1"},
			field:  FieldCharge,
			value:  "ch_1",
		},
		{
			name:   "OwnerHasItsOwnInvoice",
			rows:   []*transaction.Transaction{{ID: uuid.New(), PledgeID: &pledgeID, InvoiceID: "in_0", ChargeID: "ch_1"}},
			target: &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, InvoiceID: "in_1"},
			field:  FieldCharge,
			value:  "ch_1",
		},
		{
			name:        "TransfersFromStray",
			rows:        []*transaction.Transaction{{ID: uuid.New(), PledgeID: &pledgeID, PaymentIntentID: "pi_1"}},
			target:      &transaction.Transaction{ID: uuid.New(), PledgeID: &pledgeID, InvoiceID: "in_1"},
			field:       FieldPaymentIntent,
			value:       "pi_1",
			want:        true,
			wantValue:   "pi_1",
			wantUpdated: 1,
		},
		{
			name:      "InvoiceWithoutPledge",
			target:    &transaction.Transaction{ID: uuid.New()},
			field:     FieldInvoice,
			value:     "in_1",
			want:      true,
			wantValue: "in_1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &guardTx{rows: tt.rows}
			g := &guard{tx: tx, log: slog.New(slog.DiscardHandler)}

			got, err := g.claim(context.Background(), tt.target, tt.field, tt.value)
			require.NoError(t, err)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantValue, *tt.field.ptr(tt.target))
			require.Len(t, tx.updated, tt.wantUpdated)

			for _, stray := range tx.updated {
				assert.Empty(t, *tt.field.ptr(stray))
			}
		})
	}
}

func TestGuard_ClaimSubscription(t *testing.T) {
	owner := &pledge.Pledge{ID: uuid.New(), SubscriptionID: "sub_1"}
	tx := &guardTx{pledges: []*pledge.Pledge{owner}}
	g := &guard{tx: tx, log: slog.New(slog.DiscardHandler)}
	ctx := context.Background()

	fresh := &pledge.Pledge{ID: uuid.New()}

	changed, err := g.claimSubscription(ctx, fresh, "sub_1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, fresh.SubscriptionID)

	changed, err = g.claimSubscription(ctx, fresh, "sub_2")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "sub_2", fresh.SubscriptionID)

	changed, err = g.claimSubscription(ctx, fresh, "sub_3")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "sub_2", fresh.SubscriptionID)
}
