package ottype

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	// CounterName is the short registry name for the counter type.
	CounterName = "counter"
	counterURI  = "https://otsync.example/types/counter"
)

// counterType implements a commutative integer counter. Its op payload is
// the delta to add; apply is addition, transform is the identity (addition
// commutes regardless of side or of what was already applied).
type counterType struct{}

// NewCounterType returns the reference counter OT type.
func NewCounterType() Type { return counterType{} }

func (counterType) URI() string { return counterURI }

func (counterType) Create(data any) (any, error) {
	if data == nil {
		return 0, nil
	}
	n, ok := toInt(data)
	if !ok {
		return nil, fmt.Errorf("counter: create data must be a number, got %T", data)
	}
	return n, nil
}

func (counterType) DecodeOp(raw json.RawMessage) (any, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("counter: decode op: %w", err)
	}
	return n, nil
}

func (counterType) Apply(snapshot any, op any) (any, error) {
	s, ok := toInt(snapshot)
	if !ok {
		return nil, fmt.Errorf("counter: snapshot must be a number, got %T", snapshot)
	}
	d, ok := toInt(op)
	if !ok {
		return nil, fmt.Errorf("counter: op must be a number, got %T", op)
	}
	return s + d, nil
}

// Transform ignores appliedOp entirely: addition commutes, so a delta never
// needs to change no matter what else was applied concurrently.
func (counterType) Transform(op1, op2 any, side Side) (any, error) {
	d, ok := toInt(op1)
	if !ok {
		return nil, fmt.Errorf("counter: op must be a number, got %T", op1)
	}
	return d, nil
}

func (counterType) Compose(op1, op2 any) (any, error) {
	a, ok1 := toInt(op1)
	b, ok2 := toInt(op2)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("counter: compose requires numeric ops")
	}
	return a + b, nil
}

func (counterType) Invert(op any) (any, error) {
	d, ok := toInt(op)
	if !ok {
		return nil, fmt.Errorf("counter: invert requires a numeric op")
	}
	return -d, nil
}

func (counterType) Normalize(op any) (any, error) {
	return op, nil
}

// toInt accepts int and float64 (the shape JSON decoding into any produces)
// and rounds floats down, so create(x) = floor(x) or 0.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(math.Floor(n)), true
	default:
		return 0, false
	}
}
