package reconcile_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
)

func TestDecodeEvent(t *testing.T) {
	type testCase struct {
		name    string
		payload string
		wantErr bool
	}

	tests := []testCase{
		{
			name:    "Valid",
			payload: `{"id": "evt_1", "type": "charge.succeeded", "created": 1700000000, "data": {"object": {"id": "ch_1", "object": "charge"}}}`,
		},
		{name: "NotJSON", payload: `not json`, wantErr: true},
		{name: "MissingType", payload: `{"id": "evt_1", "data": {"object": {"id": "ch_1"}}}`, wantErr: true},
		{name: "MissingObject", payload: `{"id": "evt_1", "type": "charge.succeeded", "data": {}}`, wantErr: true},
		{name: "ObjectNotObject", payload: `{"id": "evt_1", "type": "charge.succeeded", "data": {"object": "ch_1"}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := reconcile.DecodeEvent([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, reconcile.ErrMalformedEvent)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "evt_1", evt.ID)
			assert.Equal(t, "charge.succeeded", evt.Type)
			assert.Equal(t, time.Unix(1700000000, 0).UTC(), evt.Created)
			assert.Equal(t, "charge", evt.Object.Kind())
		})
	}
}

func TestPayload_Accessors(t *testing.T) {
	evt, err := reconcile.DecodeEvent([]byte(`{
		"id": "evt_1",
		"type": "invoice.paid",
		"data": {"object": {
			"object": "invoice",
			"amount_paid": 2500,
			"paid": true,
			"customer": {"id": "cus_1", "object": "customer"},
			"status_transitions": {"paid_at": 1700000100},
			"metadata": {"attempt_id": "att_1", "count": 3},
			"lines": {"object": "list", "data": [
				{"subscription": "sub_1", "period": {"start": 1700000000, "end": 1702592000}}
			]}
		}}
	}`))
	require.NoError(t, err)

	obj := evt.Object

	amount, ok := obj.Int("amount_paid")
	assert.True(t, ok)
	assert.Equal(t, int64(2500), amount)

	_, ok = obj.Int("amount_due")
	assert.False(t, ok)

	paid, ok := obj.Bool("paid")
	assert.True(t, ok)
	assert.True(t, paid)

	assert.Equal(t, "cus_1", obj.ID("customer"))
	assert.Equal(t, "sub_1", obj.ID("missing", "lines.data.0.subscription"))
	assert.Equal(t, "", obj.ID("lines.data.1.subscription"))
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), *obj.Time("status_transitions.paid_at"))
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), *obj.Time("lines.data.0.period.end"))
	assert.Nil(t, obj.Time("lines.data.0.period.missing"))
	assert.Equal(t, map[string]string{"attempt_id": "att_1", "count": "3"}, obj.Metadata("metadata"))
	assert.Len(t, obj.Objects("lines"), 1)
}

func TestPayload_Shapes(t *testing.T) {
	obj := reconcile.NewPayload([]byte(`{
		"latest_charge": {"id": "ch_1", "payment_method": "pm_1"},
		"amount": "1500",
		"refunds": [{"id": "re_1"}, "re_2", {"id": "re_3"}],
		"empty_metadata": {},
		"name": 42
	}`))

	assert.Equal(t, "ch_1", obj.ID("latest_charge"))
	assert.Equal(t, "pm_1", obj.ID("latest_charge.payment_method"))
	assert.Equal(t, "", obj.String("name"))
	assert.Equal(t, "", obj.ID("name"))

	amount, ok := obj.Int("amount")
	assert.True(t, ok)
	assert.Equal(t, int64(1500), amount)

	assert.Len(t, obj.Objects("refunds"), 2)
	assert.Nil(t, obj.Objects("latest_charge.payment_method"))
	assert.Nil(t, obj.Metadata("empty_metadata"))

	_, ok = obj.Object("amount")
	assert.False(t, ok)

	var zero reconcile.Payload
	assert.Equal(t, "", zero.Kind())
	assert.Nil(t, zero.Time("created"))
}
