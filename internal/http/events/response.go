package events

import (
	"encoding/json"
	"time"

	"github.com/MrJamesThe3rd/donorledger/internal/events"
)

type eventResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Attempts    int             `json:"attempts"`
	Failed      bool            `json:"failed"`
	LastError   string          `json:"last_error,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func toResponse(r *events.Record, withPayload bool) eventResponse {
	resp := eventResponse{
		ID:          r.ID,
		Type:        r.Type,
		Attempts:    r.Attempts,
		Failed:      r.Failed(),
		LastError:   r.LastError,
		ReceivedAt:  r.ReceivedAt,
		ProcessedAt: r.ProcessedAt,
	}

	if withPayload && json.Valid(r.Payload) {
		resp.Payload = json.RawMessage(r.Payload)
	}

	return resp
}

func toResponseList(records []*events.Record) []eventResponse {
	resp := make([]eventResponse, len(records))
	for i, r := range records {
		resp[i] = toResponse(r, false)
	}

	return resp
}
