package catalog

import (
	"errors"
	"time"
)

// Rule violations. These are expected outcomes of a request and never leave
// the store in a partially updated state.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrBookNotFound    = errors.New("invalid book")
	ErrUserNotFound    = errors.New("invalid user")
	ErrRecordNotFound  = errors.New("invalid record")
	ErrBookUnavailable = errors.New("book unavailable")
	ErrAlreadyReturned = errors.New("record already returned")
)

// ErrStorage marks failures of the underlying persistence layer. It is
// joined with the cause, so errors.Is works for both.
var ErrStorage = errors.New("storage failure")

var ruleViolations = []error{
	ErrInvalidInput,
	ErrBookNotFound,
	ErrUserNotFound,
	ErrRecordNotFound,
	ErrBookUnavailable,
	ErrAlreadyReturned,
}

// IsRuleViolation reports whether err is a business rule failure rather than
// a system failure.
func IsRuleViolation(err error) bool {
	if err == nil || errors.Is(err, ErrStorage) {
		return false
	}
	for _, target := range ruleViolations {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RecordFilter narrows ListRecords. Zero values match everything.
type RecordFilter struct {
	BookID          int64
	UserID          int64
	OutstandingOnly bool
}

// TimestampLayout is the ISO-8601 local-time form borrow and return dates
// are persisted in.
const TimestampLayout = "2006-01-02T15:04:05.000000"

func formatTimestamp(t time.Time) string {
	return t.In(time.Local).Format(TimestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.Local)
}
