// Package memory is an in-process ledger store built on go-memdb. It enforces
// the same uniqueness rules as the PostgreSQL schema and runs one unit of work
// at a time, which makes it suitable for tests and local runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"github.com/MrJamesThe3rd/donorledger/internal/checkout"
	"github.com/MrJamesThe3rd/donorledger/internal/events"
	"github.com/MrJamesThe3rd/donorledger/internal/pledge"
	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

const (
	tablePledges      = "pledges"
	tableTransactions = "transactions"
	tableRefunds      = "refunds"
	tableEvents       = "events"
)

// stringIndex indexes objects of type T by a string field. Objects whose
// field is empty are left out of the index.
type stringIndex[T any] func(T) string

func (f stringIndex[T]) FromObject(raw any) (bool, []byte, error) {
	obj, ok := raw.(T)
	if !ok {
		return false, nil, fmt.Errorf("unexpected object %T", raw)
	}

	v := f(obj)
	if v == "" {
		return false, nil, nil
	}

	return true, []byte(v + "\x00"), nil
}

func (f stringIndex[T]) FromArgs(args ...any) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one argument, got %d", len(args))
	}

	v, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("argument must be a string: %#v", args[0])
	}

	return []byte(v + "\x00"), nil
}

func table[T any](name string, id stringIndex[T], indexes map[string]stringIndex[T]) *memdb.TableSchema {
	ts := &memdb.TableSchema{
		Name: name,
		Indexes: map[string]*memdb.IndexSchema{
			"id": {Name: "id", Unique: true, Indexer: id},
		},
	}

	for field, idx := range indexes {
		ts.Indexes[field] = &memdb.IndexSchema{Name: field, AllowMissing: true, Indexer: idx}
	}

	return ts
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}

	return id.String()
}

// pledgeInvoice is the key of the per-pledge invoice uniqueness rule.
func pledgeInvoice(t *transaction.Transaction) string {
	if t.PledgeID == nil || t.InvoiceID == "" {
		return ""
	}

	return t.PledgeID.String() + "/" + t.InvoiceID
}

var ledgerSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tablePledges: table[*pledge.Pledge](tablePledges,
			func(p *pledge.Pledge) string { return p.ID.String() },
			map[string]stringIndex[*pledge.Pledge]{
				"subscription": func(p *pledge.Pledge) string { return p.SubscriptionID },
				"attempt":      func(p *pledge.Pledge) string { return p.AttemptID },
				"customer":     func(p *pledge.Pledge) string { return p.CustomerID },
			}),
		tableTransactions: table[*transaction.Transaction](tableTransactions,
			func(t *transaction.Transaction) string { return t.ID.String() },
			map[string]stringIndex[*transaction.Transaction]{
				"payment_intent": func(t *transaction.Transaction) string { return t.PaymentIntentID },
				"charge":         func(t *transaction.Transaction) string { return t.ChargeID },
				"pledge_invoice": pledgeInvoice,
				"pledge":         func(t *transaction.Transaction) string { return optionalID(t.PledgeID) },
				"subscription":   func(t *transaction.Transaction) string { return t.SubscriptionID },
				"attempt":        func(t *transaction.Transaction) string { return t.AttemptID },
			}),
		tableRefunds: table[*transaction.Refund](tableRefunds,
			func(r *transaction.Refund) string { return r.ExternalID },
			map[string]stringIndex[*transaction.Refund]{
				"charge":      func(r *transaction.Refund) string { return r.ChargeID },
				"transaction": func(r *transaction.Refund) string { return optionalID(r.TransactionID) },
			}),
	},
}

var eventSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableEvents: table[*events.Record](tableEvents, func(r *events.Record) string { return r.ID }, nil),
	},
}

// Store keeps the ledger and the event log in separate databases, so the log
// can be written while a unit of work is open.
type Store struct {
	ledger *memdb.MemDB
	events *memdb.MemDB
}

func New() *Store {
	ledger, err := memdb.NewMemDB(ledgerSchema)
	if err != nil {
		panic(fmt.Sprintf("memory: ledger schema: %v", err))
	}

	log, err := memdb.NewMemDB(eventSchema)
	if err != nil {
		panic(fmt.Sprintf("memory: event schema: %v", err))
	}

	return &Store{ledger: ledger, events: log}
}

func copyPledge(p *pledge.Pledge) *pledge.Pledge {
	c := *p
	return &c
}

func copyTransaction(t *transaction.Transaction) *transaction.Transaction {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)

	return &c
}

func copyRefund(r *transaction.Refund) *transaction.Refund {
	c := *r
	return &c
}

func copyEvent(r *events.Record) *events.Record {
	c := *r
	return &c
}

// collect drains it, copying every object through clone.
func collect[T any](it memdb.ResultIterator, clone func(T) T) []T {
	var out []T

	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, clone(obj.(T)))
	}

	return out
}

// first returns a copy of the first object at index, or the zero value.
func first[T any](txn *memdb.Txn, tbl, index, arg string, clone func(T) T) (T, error) {
	var zero T

	obj, err := txn.First(tbl, index, arg)
	if err != nil {
		return zero, fmt.Errorf("reading %s by %s: %w", tbl, index, err)
	}

	if obj == nil {
		return zero, nil
	}

	return clone(obj.(T)), nil
}

// Begin opens a unit of work as a write transaction. memdb admits one writer
// at a time, so keys are not needed.
func (s *Store) Begin(_ context.Context, _ []string) (reconcile.Tx, error) {
	return s.begin(), nil
}

func (s *Store) BeginAttempt(_ context.Context, _ string) (checkout.AttemptTx, error) {
	return s.begin(), nil
}

func (s *Store) begin() *unit {
	return &unit{txn: s.ledger.Txn(true)}
}

func (s *Store) GetPledge(_ context.Context, id uuid.UUID) (*pledge.Pledge, error) {
	p, err := first(s.ledger.Txn(false), tablePledges, "id", id.String(), copyPledge)
	if err != nil {
		return nil, err
	}

	if p == nil {
		return nil, pledge.ErrNotFound
	}

	return p, nil
}

func (s *Store) ListPledges(_ context.Context, filter pledge.ListFilter) ([]*pledge.Pledge, error) {
	txn := s.ledger.Txn(false)

	var (
		it  memdb.ResultIterator
		err error
	)

	if filter.CustomerID != "" {
		it, err = txn.Get(tablePledges, "customer", filter.CustomerID)
	} else {
		it, err = txn.Get(tablePledges, "id")
	}

	if err != nil {
		return nil, fmt.Errorf("listing pledges: %w", err)
	}

	out := slices.DeleteFunc(collect(it, copyPledge), func(p *pledge.Pledge) bool {
		return filter.Status != nil && p.Status != *filter.Status
	})

	slices.SortFunc(out, func(a, b *pledge.Pledge) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})

	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := first(s.ledger.Txn(false), tableTransactions, "id", id.String(), copyTransaction)
	if err != nil {
		return nil, err
	}

	if t == nil {
		return nil, transaction.ErrNotFound
	}

	return t, nil
}

func effectiveDate(t *transaction.Transaction) time.Time {
	if t.PaidAt != nil {
		return *t.PaidAt
	}

	return t.CreatedAt
}

func (s *Store) ListTransactions(_ context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	txn := s.ledger.Txn(false)

	var (
		it  memdb.ResultIterator
		err error
	)

	if filter.PledgeID != nil {
		it, err = txn.Get(tableTransactions, "pledge", filter.PledgeID.String())
	} else {
		it, err = txn.Get(tableTransactions, "id")
	}

	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	out := slices.DeleteFunc(collect(it, copyTransaction), func(t *transaction.Transaction) bool {
		date := effectiveDate(t)

		switch {
		case filter.Status != nil && t.Status != *filter.Status:
			return true
		case filter.StartDate != nil && date.Before(*filter.StartDate):
			return true
		case filter.EndDate != nil && date.After(*filter.EndDate):
			return true
		}

		return false
	})

	slices.SortFunc(out, func(a, b *transaction.Transaction) int {
		return cmp.Or(effectiveDate(a).Compare(effectiveDate(b)), strings.Compare(a.ID.String(), b.ID.String()))
	})

	return out, nil
}

func (s *Store) ListRefunds(_ context.Context, transactionID uuid.UUID) ([]*transaction.Refund, error) {
	it, err := s.ledger.Txn(false).Get(tableRefunds, "transaction", transactionID.String())
	if err != nil {
		return nil, fmt.Errorf("listing refunds: %w", err)
	}

	out := collect(it, copyRefund)
	sortRefunds(out)

	return out, nil
}

func sortRefunds(refunds []*transaction.Refund) {
	slices.SortFunc(refunds, func(a, b *transaction.Refund) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ExternalID, b.ExternalID))
	})
}

// SaveEvent stores r unless an event with the same id is already logged.
func (s *Store) SaveEvent(_ context.Context, r *events.Record) error {
	txn := s.events.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableEvents, "id", r.ID)
	if err != nil {
		return fmt.Errorf("reading event: %w", err)
	}

	if existing != nil {
		return nil
	}

	if err := txn.Insert(tableEvents, copyEvent(r)); err != nil {
		return fmt.Errorf("saving event: %w", err)
	}

	txn.Commit()

	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*events.Record, error) {
	r, err := first(s.events.Txn(false), tableEvents, "id", id, copyEvent)
	if err != nil {
		return nil, err
	}

	if r == nil {
		return nil, events.ErrNotFound
	}

	return r, nil
}

func (s *Store) ListEvents(_ context.Context, filter events.ListFilter) ([]*events.Record, error) {
	it, err := s.events.Txn(false).Get(tableEvents, "id")
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	out := slices.DeleteFunc(collect(it, copyEvent), func(r *events.Record) bool {
		return (filter.FailedOnly && !r.Failed()) || (filter.Type != "" && r.Type != filter.Type)
	})

	slices.SortFunc(out, func(a, b *events.Record) int {
		return cmp.Or(b.ReceivedAt.Compare(a.ReceivedAt), strings.Compare(a.ID, b.ID))
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

func (s *Store) RecordAttempt(_ context.Context, id string, processedAt *time.Time, lastError string) error {
	txn := s.events.Txn(true)
	defer txn.Abort()

	r, err := first(txn, tableEvents, "id", id, copyEvent)
	if err != nil {
		return err
	}

	if r == nil {
		return fmt.Errorf("recording event attempt: %w", events.ErrNotFound)
	}

	r.Attempts++
	r.LastError = lastError

	if processedAt != nil {
		r.ProcessedAt = processedAt
	}

	if err := txn.Insert(tableEvents, r); err != nil {
		return fmt.Errorf("recording event attempt: %w", err)
	}

	txn.Commit()

	return nil
}
