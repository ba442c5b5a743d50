package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// zeroDecimal lists the currencies the processor bills in whole units.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// formatAmount renders a minor-unit amount as a decimal string, "12.50".
func formatAmount(amount int64, currency string) string {
	if zeroDecimal[strings.ToLower(currency)] {
		return decimal.New(amount, 0).String()
	}

	return decimal.New(amount, -2).StringFixed(2)
}

type transactionResponse struct {
	ID              uuid.UUID          `json:"id"`
	PledgeID        *uuid.UUID         `json:"pledge_id,omitempty"`
	UserID          *uuid.UUID         `json:"user_id,omitempty"`
	AttemptID       string             `json:"attempt_id,omitempty"`
	Type            transaction.Type   `json:"type"`
	Status          transaction.Status `json:"status"`
	Amount          int64              `json:"amount"`
	AmountDisplay   string             `json:"amount_display"`
	Currency        string             `json:"currency"`
	PaymentIntentID string             `json:"payment_intent_id,omitempty"`
	ChargeID        string             `json:"charge_id,omitempty"`
	InvoiceID       string             `json:"invoice_id,omitempty"`
	SubscriptionID  string             `json:"subscription_id,omitempty"`
	CustomerID      string             `json:"customer_id,omitempty"`
	ReceiptURL      string             `json:"receipt_url,omitempty"`
	PayerEmail      string             `json:"payer_email,omitempty"`
	PayerName       string             `json:"payer_name,omitempty"`
	Metadata        map[string]string  `json:"metadata,omitempty"`
	Source          string             `json:"source,omitempty"`
	PaidAt          *time.Time         `json:"paid_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       *time.Time         `json:"updated_at,omitempty"`
	Refunds         []refundResponse   `json:"refunds,omitempty"`
	RefundedAmount  *int64             `json:"refunded_amount,omitempty"`
}

type refundResponse struct {
	ID            uuid.UUID                `json:"id"`
	ExternalID    string                   `json:"external_id"`
	Amount        int64                    `json:"amount"`
	AmountDisplay string                   `json:"amount_display"`
	Status        transaction.RefundStatus `json:"status"`
	Reason        string                   `json:"reason,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

func toTransactionResponse(tx *transaction.Transaction) transactionResponse {
	return transactionResponse{
		ID:              tx.ID,
		PledgeID:        tx.PledgeID,
		UserID:          tx.UserID,
		AttemptID:       tx.AttemptID,
		Type:            tx.Type,
		Status:          tx.Status,
		Amount:          tx.Amount,
		AmountDisplay:   formatAmount(tx.Amount, tx.Currency),
		Currency:        tx.Currency,
		PaymentIntentID: tx.PaymentIntentID,
		ChargeID:        tx.ChargeID,
		InvoiceID:       tx.InvoiceID,
		SubscriptionID:  tx.SubscriptionID,
		CustomerID:      tx.CustomerID,
		ReceiptURL:      tx.ReceiptURL,
		PayerEmail:      tx.PayerEmail,
		PayerName:       tx.PayerName,
		Metadata:        tx.Metadata,
		Source:          tx.Source,
		PaidAt:          tx.PaidAt,
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       tx.UpdatedAt,
	}
}

func toDetailResponse(d *transaction.Detail) transactionResponse {
	resp := toTransactionResponse(d.Transaction)
	resp.Refunds = make([]refundResponse, len(d.Refunds))

	for i, r := range d.Refunds {
		resp.Refunds[i] = refundResponse{
			ID:            r.ID,
			ExternalID:    r.ExternalID,
			Amount:        r.Amount,
			AmountDisplay: formatAmount(r.Amount, r.Currency),
			Status:        r.Status,
			Reason:        r.Reason,
			CreatedAt:     r.CreatedAt,
		}
	}

	resp.RefundedAmount = new(transaction.RefundedTotal(d.Refunds))

	return resp
}

func toTransactionList(txs []*transaction.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toTransactionResponse(tx)
	}

	return resp
}

type pledgeResponse struct {
	ID                uuid.UUID             `json:"id"`
	UserID            *uuid.UUID            `json:"user_id,omitempty"`
	AttemptID         string                `json:"attempt_id,omitempty"`
	Status            pledge.Status         `json:"status"`
	Amount            int64                 `json:"amount"`
	AmountDisplay     string                `json:"amount_display"`
	Currency          string                `json:"currency"`
	Interval          pledge.Interval       `json:"interval"`
	CustomerID        string                `json:"customer_id,omitempty"`
	SubscriptionID    string                `json:"subscription_id,omitempty"`
	LatestInvoiceID   string                `json:"latest_invoice_id,omitempty"`
	CurrentPeriodEnd  *time.Time            `json:"current_period_end,omitempty"`
	LastPledgeAt      *time.Time            `json:"last_pledge_at,omitempty"`
	NextPledgeAt      *time.Time            `json:"next_pledge_at,omitempty"`
	CancelAtPeriodEnd bool                  `json:"cancel_at_period_end"`
	CanceledAt        *time.Time            `json:"canceled_at,omitempty"`
	DonorEmail        string                `json:"donor_email,omitempty"`
	DonorName         string                `json:"donor_name,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         *time.Time            `json:"updated_at,omitempty"`
	Transactions      []transactionResponse `json:"transactions,omitempty"`
}

func toPledgeResponse(p *pledge.Pledge) pledgeResponse {
	return pledgeResponse{
		ID:                p.ID,
		UserID:            p.UserID,
		AttemptID:         p.AttemptID,
		Status:            p.Status,
		Amount:            p.Amount,
		AmountDisplay:     formatAmount(p.Amount, p.Currency),
		Currency:          p.Currency,
		Interval:          p.Interval,
		CustomerID:        p.CustomerID,
		SubscriptionID:    p.SubscriptionID,
		LatestInvoiceID:   p.LatestInvoiceID,
		CurrentPeriodEnd:  p.CurrentPeriodEnd,
		LastPledgeAt:      p.LastPledgeAt,
		NextPledgeAt:      p.NextPledgeAt,
		CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		CanceledAt:        p.CanceledAt,
		DonorEmail:        p.DonorEmail,
		DonorName:         p.DonorName,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toPledgeList(pledges []*pledge.Pledge) []pledgeResponse {
	resp := make([]pledgeResponse, len(pledges))
	for i, p := range pledges {
		resp[i] = toPledgeResponse(p)
	}

	return resp
}
