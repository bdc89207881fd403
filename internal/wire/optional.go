package wire

import (
	"fmt"
	"strconv"
	"strings"

	"escrowline/internal/domain"
)

// The ledger encodes optional scalars as zero-or-one-element sequences and
// statuses as single-key tagged objects. These helpers collapse both
// conventions into plain nullable values.

// Optional unwraps the sequence convention: an empty sequence is nil, a
// one-element sequence is its sole element. Bare values pass through so
// already-unwrapped records re-decode cleanly.
func Optional(v any) any {
	seq, ok := v.([]any)
	if !ok {
		return v
	}
	if len(seq) == 0 {
		return nil
	}
	return seq[0]
}

// OptionalInt64 unwraps then coerces; absent or malformed values are nil.
func OptionalInt64(v any) *int64 {
	inner := Optional(v)
	if inner == nil {
		return nil
	}
	n := AsInt64(inner)
	return &n
}

// OptionalString unwraps then stringifies; absent values are "".
func OptionalString(v any) string {
	inner := Optional(v)
	if inner == nil {
		return ""
	}
	return AsString(inner)
}

var statusByTag = map[string]domain.Status{
	"pending":   domain.StatusPending,
	"confirmed": domain.StatusConfirmed,
	"released":  domain.StatusReleased,
	"cancelled": domain.StatusCancelled,
	"canceled":  domain.StatusCancelled,
	"declined":  domain.StatusDeclined,
	"refund":    domain.StatusRefund,
	"refunded":  domain.StatusRefund,
}

// Status maps the tagged single-key status object to the canonical enum.
// Plain strings pass through when they name a known member. Anything else,
// including a missing or multi-key tag, is StatusUnknown.
func Status(v any) domain.Status {
	switch s := v.(type) {
	case string:
		if st, ok := statusByTag[strings.ToLower(strings.TrimSpace(s))]; ok {
			return st
		}
	case map[string]any:
		if len(s) == 1 {
			for tag := range s {
				if st, ok := statusByTag[strings.ToLower(strings.TrimSpace(tag))]; ok {
					return st
				}
			}
		}
	case domain.Status:
		return s
	}
	return domain.StatusUnknown
}

var recipientStatusByTag = map[string]domain.RecipientStatus{
	"pending":   domain.RecipientPending,
	"approved":  domain.RecipientApproved,
	"declined":  domain.RecipientDeclined,
	"noaction":  domain.RecipientNoAction,
	"no_action": domain.RecipientNoAction,
}

// RecipientStatus is Status for the per-recipient decision enum.
func RecipientStatus(v any) domain.RecipientStatus {
	switch s := v.(type) {
	case string:
		if st, ok := recipientStatusByTag[strings.ToLower(strings.TrimSpace(s))]; ok {
			return st
		}
	case map[string]any:
		if len(s) == 1 {
			for tag := range s {
				if st, ok := recipientStatusByTag[strings.ToLower(strings.TrimSpace(tag))]; ok {
					return st
				}
			}
		}
	case domain.RecipientStatus:
		return s
	}
	return domain.RecipientPending
}

// AsInt64 coerces the numeric wire shapes (JSON number, decimal string,
// integer) to int64. Malformed input is zero, never an error: a record with
// a broken amount still normalizes.
func AsInt64(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
			return parsed
		}
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(parsed)
		}
	}
	return 0
}

// AsFloat64 coerces fractional wire values; malformed input is zero.
func AsFloat64(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return parsed
		}
	}
	return 0
}

// AsString stringifies scalar wire values without the quoting fmt would add.
func AsString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}
