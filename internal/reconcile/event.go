package reconcile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
)

var validate = validator.New()

// Event is a verified processor notification. Object carries the event's
// data.object, whose shape depends on Type and on the processor API version.
type Event struct {
	ID       string
	Type     string
	Created  time.Time
	Livemode bool
	Object   Payload
}

type envelope struct {
	ID       string `json:"id" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object json.RawMessage `json:"object" validate:"required"`
	} `json:"data"`
}

// DecodeEvent parses a raw webhook body into an Event. Any failure is
// reported as ErrMalformedEvent.
func DecodeEvent(payload []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if err := validate.Struct(env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	obj := NewPayload(env.Data.Object)
	if !obj.res.IsObject() {
		return nil, fmt.Errorf("%w: data.object is not an object", ErrMalformedEvent)
	}

	evt := &Event{
		ID:       env.ID,
		Type:     env.Type,
		Livemode: env.Livemode,
		Object:   obj,
	}

	if env.Created > 0 {
		evt.Created = time.Unix(env.Created, 0).UTC()
	}

	return evt, nil
}

// Payload is a loosely typed processor object. Values are addressed by gjson
// paths such as "lines.data.0.subscription".
type Payload struct {
	res gjson.Result
}

// NewPayload wraps a raw JSON object.
func NewPayload(raw []byte) Payload {
	return Payload{res: gjson.ParseBytes(raw)}
}

// Kind returns the processor's object type, e.g. "invoice" or "charge".
func (p Payload) Kind() string {
	return p.String("object")
}

// String returns the first non-empty string found at any of paths.
func (p Payload) String(paths ...string) string {
	for _, path := range paths {
		if v := p.res.Get(path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}

	return ""
}

// ID returns the first identifier found at any of paths. A value counts as an
// identifier when it is a non-empty string or an expanded object whose "id"
// is one.
func (p Payload) ID(paths ...string) string {
	for _, path := range paths {
		if id := idOf(p.res.Get(path)); id != "" {
			return id
		}
	}

	return ""
}

// Int returns the first integer found at any of paths.
func (p Payload) Int(paths ...string) (int64, bool) {
	for _, path := range paths {
		v := p.res.Get(path)

		switch v.Type {
		case gjson.Number:
			return v.Int(), true
		case gjson.String:
			if i, err := strconv.ParseInt(v.Str, 10, 64); err == nil {
				return i, true
			}
		}
	}

	return 0, false
}

// Time interprets the first integer found at any of paths as unix seconds.
func (p Payload) Time(paths ...string) *time.Time {
	secs, ok := p.Int(paths...)
	if !ok || secs <= 0 {
		return nil
	}

	t := time.Unix(secs, 0).UTC()

	return &t
}

func (p Payload) Bool(path string) (bool, bool) {
	v := p.res.Get(path)
	if !v.IsBool() {
		return false, false
	}

	return v.Bool(), true
}

// Object returns the nested object at path. The second result is false when
// path does not hold an object.
func (p Payload) Object(path string) (Payload, bool) {
	v := p.res.Get(path)
	if !v.IsObject() {
		return Payload{}, false
	}

	return Payload{res: v}, true
}

// Objects returns the objects of the array or list object at path.
func (p Payload) Objects(path string) []Payload {
	v := p.res.Get(path)
	if v.IsObject() {
		v = v.Get("data")
	}

	if !v.IsArray() {
		return nil
	}

	var out []Payload

	for _, item := range v.Array() {
		if item.IsObject() {
			out = append(out, Payload{res: item})
		}
	}

	return out
}

// Metadata returns the scalar values of the map at path as strings.
func (p Payload) Metadata(path string) map[string]string {
	m, ok := p.Object(path)
	if !ok {
		return nil
	}

	out := make(map[string]string)

	m.res.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.String, gjson.Number, gjson.True, gjson.False:
			out[key.Str] = value.String()
		}

		return true
	})

	if len(out) == 0 {
		return nil
	}

	return out
}

func idOf(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.Str
	case v.IsObject():
		return idOf(v.Get("id"))
	}

	return ""
}
