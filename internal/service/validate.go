package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"txn-anomaly-alerts/internal/config"
	"txn-anomaly-alerts/internal/storage"
)

// RawEvent is an ingest payload as received on the wire.
type RawEvent struct {
	Timestamp string          `json:"timestamp"`
	Status    string          `json:"status"`
	Count     json.RawMessage `json:"count"`
}

// Event is a validated, normalised RawEvent.
type Event struct {
	Timestamp time.Time
	Status    string
	Count     int64
}

// Record converts the event into its persisted form.
func (e Event) Record() storage.Record {
	return storage.Record{Timestamp: e.Timestamp, Status: e.Status, Count: e.Count}
}

type presence struct {
	Timestamp string `validate:"required"`
	Status    string `validate:"required"`
	Count     string `validate:"required"`
}

var (
	validate   = validator.New(validator.WithRequiredStructEnabled())
	statusRule = "oneof=" + strings.Join(config.KnownStatuses, " ")
)

// ValidateEvent checks presence, status membership and formats in that order.
func ValidateEvent(raw RawEvent) (Event, error) {
	count := strings.TrimSpace(string(raw.Count))
	if count == "null" {
		count = ""
	}

	fields := presence{
		Timestamp: strings.TrimSpace(raw.Timestamp),
		Status:    raw.Status,
		Count:     count,
	}
	if err := validate.Struct(fields); err != nil {
		return Event{}, invalid(ReasonMissingField, "Missing 'timestamp', 'status', or 'count'")
	}

	if err := validate.Var(raw.Status, statusRule); err != nil {
		return Event{}, invalid(ReasonUnsupportedStatus, "Unsupported status '%s'", raw.Status)
	}

	n, err := parseCount(raw.Count)
	if err != nil {
		return Event{}, invalid(ReasonInvalidFormat, "Invalid data format: %v", err)
	}
	ts, err := ParseTimestamp(fields.Timestamp)
	if err != nil {
		return Event{}, invalid(ReasonInvalidFormat, "Invalid data format: %v", err)
	}

	return Event{Timestamp: ts, Status: raw.Status, Count: n}, nil
}

// ParseTimestamp accepts ISO-8601 date-times with a T or space separator,
// optional fractional seconds and an optional offset. See storage.ParseTimestamp.
func ParseTimestamp(value string) (time.Time, error) {
	return storage.ParseTimestamp(value)
}

// ParseCount accepts a non-negative integer given as text.
func ParseCount(value string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", value)
	}
	if n < 0 {
		return 0, fmt.Errorf("count must be non-negative, got %d", n)
	}
	return n, nil
}

// parseCount accepts a JSON integer, an integral JSON float or an integer string.
func parseCount(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("invalid count: %w", err)
		}
		return ParseCount(s)
	}

	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid count %s", raw)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("count must be an integer, got %s", d)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("count must be non-negative, got %s", d)
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("count out of range: %s", d)
	}
	return d.IntPart(), nil
}
