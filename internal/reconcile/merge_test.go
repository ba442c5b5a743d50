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

func TestMergeTransaction(t *testing.T) {
	earlier := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	type testCase struct {
		name        string
		current     transaction.Transaction
		patch       reconcile.TransactionPatch
		want        transaction.Transaction
		wantChanged bool
		wantRefused transaction.Status
	}

	tests := []testCase{
		{
			name:        "SettlesPending",
			current:     transaction.Transaction{Status: transaction.StatusPending},
			patch:       reconcile.TransactionPatch{Status: transaction.StatusSucceeded, PaidAt: &earlier},
			want:        transaction.Transaction{Status: transaction.StatusSucceeded, PaidAt: &earlier},
			wantChanged: true,
		},
		{
			name:        "NeverRegressesStatus",
			current:     transaction.Transaction{Status: transaction.StatusSucceeded},
			patch:       reconcile.TransactionPatch{Status: transaction.StatusPending},
			want:        transaction.Transaction{Status: transaction.StatusSucceeded},
			wantRefused: transaction.StatusPending,
		},
		{
			name:        "FailedStaysFailed",
			current:     transaction.Transaction{Status: transaction.StatusFailed},
			patch:       reconcile.TransactionPatch{Status: transaction.StatusSucceeded, PaidAt: &earlier},
			want:        transaction.Transaction{Status: transaction.StatusFailed},
			wantRefused: transaction.StatusSucceeded,
		},
		{
			name:    "EmptyPatchKeepsFields",
			current: transaction.Transaction{Status: transaction.StatusPending, Currency: "usd", PayerEmail: "a@example.org", PaidAt: &earlier},
			patch:   reconcile.TransactionPatch{},
			want:    transaction.Transaction{Status: transaction.StatusPending, Currency: "usd", PayerEmail: "a@example.org", PaidAt: &earlier},
		},
		{
			name:        "PaidAtOnlyAdvances",
			current:     transaction.Transaction{PaidAt: &later},
			patch:       reconcile.TransactionPatch{PaidAt: &earlier},
			want:        transaction.Transaction{PaidAt: &later},
			wantChanged: false,
		},
		{
			name:        "IdentityFieldsFillOnly",
			current:     transaction.Transaction{Currency: "usd", AttemptID: "att_1", Amount: 1000},
			patch:       reconcile.TransactionPatch{Currency: "eur", AttemptID: "att_2", Amount: 2000},
			want:        transaction.Transaction{Currency: "usd", AttemptID: "att_1", Amount: 1000},
			wantChanged: false,
		},
		{
			name:        "SourceKeepsHighestRanked",
			current:     transaction.Transaction{Source: "stripe_webhook:invoice.paid"},
			patch:       reconcile.TransactionPatch{Source: "stripe_webhook:charge.succeeded"},
			want:        transaction.Transaction{Source: "stripe_webhook:invoice.paid"},
			wantChanged: false,
		},
		{
			name:        "SourceRaisedByInvoice",
			current:     transaction.Transaction{Source: "checkout"},
			patch:       reconcile.TransactionPatch{Source: "stripe_webhook:invoice.payment_succeeded"},
			want:        transaction.Transaction{Source: "stripe_webhook:invoice.payment_succeeded"},
			wantChanged: true,
		},
		{
			name:    "ChargeDetailsFillOwnedCharge",
			current: transaction.Transaction{ChargeID: "ch_1", PayerEmail: "donor@example.org"},
			patch: reconcile.TransactionPatch{
				ChargeID: "ch_1", PaymentMethodID: "pm_1", ReceiptURL: "https://pay.example.org/receipts/ch_1",
				PayerEmail: "billing@example.org", PayerName: "Dana Donor",
			},
			want: transaction.Transaction{
				ChargeID: "ch_1", PaymentMethodID: "pm_1", ReceiptURL: "https://pay.example.org/receipts/ch_1",
				PayerEmail: "donor@example.org", PayerName: "Dana Donor",
			},
			wantChanged: true,
		},
		{
			name:    "ChargeDetailsIgnoredForOtherCharge",
			current: transaction.Transaction{ChargeID: "ch_1"},
			patch: reconcile.TransactionPatch{
				ChargeID: "ch_2", PaymentMethodID: "pm_2", ReceiptURL: "https://pay.example.org/receipts/ch_2",
			},
			want: transaction.Transaction{ChargeID: "ch_1"},
		},
		{
			name:    "ChargeDetailsNeedChargeID",
			current: transaction.Transaction{},
			patch:   reconcile.TransactionPatch{ReceiptURL: "https://pay.example.org/invoices/in_1"},
			want:    transaction.Transaction{},
		},
		{
			name:        "RecurringTypeWins",
			current:     transaction.Transaction{Type: transaction.TypeOneTime},
			patch:       reconcile.TransactionPatch{Type: transaction.TypeSubscriptionRecurring},
			want:        transaction.Transaction{Type: transaction.TypeSubscriptionRecurring},
			wantChanged: true,
		},
		{
			name:    "MetadataUnion",
			current: transaction.Transaction{Metadata: map[string]string{"a": "1", "b": "2"}},
			patch:   reconcile.TransactionPatch{Metadata: map[string]string{"b": "3", "c": "4"}},
			want: transaction.Transaction{
				Metadata: map[string]string{"a": "1", "b": "3", "c": "4"},
			},
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.current

			res := reconcile.MergeTransaction(&got, tt.patch)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantChanged, res.Changed)
			assert.Equal(t, tt.wantRefused, res.Refused)
		})
	}
}

func TestMergeTransaction_Idempotent(t *testing.T) {
	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	patch := reconcile.TransactionPatch{
		Status:     transaction.StatusSucceeded,
		Amount:     1500,
		Currency:   "usd",
		CustomerID: "cus_1",
		Metadata:   map[string]string{"campaign": "spring"},
		PaidAt:     &paidAt,
	}

	var got transaction.Transaction

	assert.True(t, reconcile.MergeTransaction(&got, patch).Changed)
	assert.False(t, reconcile.MergeTransaction(&got, patch).Changed)
}

func TestMergePledge(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 1, 0)
	t3 := t2.AddDate(0, 1, 0)

	p := &pledge.Pledge{Status: pledge.StatusActive}

	assert.True(t, reconcile.MergePledge(p, reconcile.PledgePatch{
		Amount: 1000, Currency: "usd", InvoiceID: "in_2", PaymentIntentID: "pi_2", PaidAt: &t2, NextPledgeAt: &t3,
	}))

	// An older invoice arriving late neither rewinds last_pledge_at nor
	// replaces the latest invoice.
	reconcile.MergePledge(p, reconcile.PledgePatch{InvoiceID: "in_1", PaymentIntentID: "pi_1", PaidAt: &t1, NextPledgeAt: &t2})

	assert.Equal(t, t2, *p.LastPledgeAt)
	assert.Equal(t, t3, *p.NextPledgeAt)
	assert.Equal(t, "in_2", p.LatestInvoiceID)
	assert.Equal(t, "pi_2", p.LatestPaymentIntentID)

	reconcile.MergePledge(p, reconcile.PledgePatch{InvoiceID: "in_3", PaidAt: &t3})

	assert.Equal(t, t3, *p.LastPledgeAt)
	assert.Equal(t, "in_3", p.LatestInvoiceID)

	cancel := true
	assert.True(t, reconcile.MergePledge(p, reconcile.PledgePatch{CancelAtPeriodEnd: &cancel, CanceledAt: &t3, SnapshotAt: &t3}))
	assert.False(t, reconcile.MergePledge(p, reconcile.PledgePatch{CancelAtPeriodEnd: &cancel, CanceledAt: &t2, SnapshotAt: &t3}))
	assert.True(t, p.CancelAtPeriodEnd)
	assert.Equal(t, t3, *p.CanceledAt)
	assert.Equal(t, pledge.StatusActive, p.Status)
}

func TestMergePledge_Snapshots(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	older := reconcile.PledgePatch{Amount: 1000, Interval: pledge.IntervalMonth, PriceID: "price_1", CancelAtPeriodEnd: new(false), SnapshotAt: &t1}
	newer := reconcile.PledgePatch{Amount: 2500, Interval: pledge.IntervalYear, PriceID: "price_2", CancelAtPeriodEnd: new(true), SnapshotAt: &t2}

	for _, order := range [][]reconcile.PledgePatch{{older, newer}, {newer, older}} {
		p := &pledge.Pledge{Amount: 1000, Interval: pledge.IntervalMonth}

		for _, patch := range order {
			reconcile.MergePledge(p, patch)
		}

		assert.Equal(t, int64(2500), p.Amount)
		assert.Equal(t, pledge.IntervalYear, p.Interval)
		assert.Equal(t, "price_2", p.PriceID)
		assert.True(t, p.CancelAtPeriodEnd)
		assert.Equal(t, t2, *p.SubscriptionSyncedAt)

		// Patches that are not snapshots never override the schedule.
		assert.False(t, reconcile.MergePledge(p, reconcile.PledgePatch{Amount: 1000, PriceID: "price_1"}))
		assert.Equal(t, int64(2500), p.Amount)
	}
}

func TestMergePledge_DonorContactFillsOnly(t *testing.T) {
	p := &pledge.Pledge{DonorEmail: "donor@example.org"}

	assert.True(t, reconcile.MergePledge(p, reconcile.PledgePatch{DonorEmail: "other@example.org", DonorName: "Dana Donor"}))
	assert.Equal(t, "donor@example.org", p.DonorEmail)
	assert.Equal(t, "Dana Donor", p.DonorName)
}

func TestAbsorbPlaceholder(t *testing.T) {
	pledgeID := uuid.New()
	earlier := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	row := &transaction.Transaction{
		Type:       transaction.TypeOneTime,
		Status:     transaction.StatusPending,
		Amount:     1000,
		Currency:   "usd",
		ChargeID:   "ch_1",
		CustomerID: "cus_1",
		PayerEmail: "billing@example.org",
		PayerName:  "Dana Donor",
		ReceiptURL: "https://pay.example.org/receipts/ch_1",
		Source:     "stripe_webhook:charge.succeeded",
		CreatedAt:  earlier.Add(time.Hour),
	}
	placeholder := &transaction.Transaction{
		Type:       transaction.TypeSubscriptionInitial,
		Status:     transaction.StatusPending,
		PledgeID:   &pledgeID,
		Amount:     1000,
		Currency:   "usd",
		AttemptID:  "att_1",
		PayerEmail: "donor@example.org",
		Source:     "checkout",
		Metadata:   map[string]string{"campaign": "spring"},
		CreatedAt:  earlier,
	}

	reconcile.AbsorbPlaceholder(row, placeholder)

	assert.Equal(t, &pledgeID, row.PledgeID)
	assert.Equal(t, transaction.TypeSubscriptionInitial, row.Type)
	assert.Equal(t, "att_1", row.AttemptID)
	assert.Equal(t, "donor@example.org", row.PayerEmail)
	assert.Equal(t, "Dana Donor", row.PayerName)
	assert.Equal(t, "https://pay.example.org/receipts/ch_1", row.ReceiptURL)
	assert.Equal(t, "stripe_webhook:charge.succeeded", row.Source)
	assert.Equal(t, earlier, row.CreatedAt)
	assert.Equal(t, map[string]string{"campaign": "spring"}, row.Metadata)
}
