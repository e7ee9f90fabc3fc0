package usage

import (
	"fmt"
	"time"
)

// Kind is a metered quota category.
type Kind string

const (
	KindSTTSeconds  Kind = "stt_seconds"
	KindTTSChars    Kind = "tts_chars"
	KindPronSeconds Kind = "pron_seconds"
)

// Kinds lists every quota kind in display order.
var Kinds = []Kind{KindSTTSeconds, KindTTSChars, KindPronSeconds}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown usage kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSTTSeconds, KindTTSChars, KindPronSeconds:
		return true
	}
	return false
}

// Event is a single metered unit of vendor consumption. Events are never
// updated after they are written.
type Event struct {
	Timestamp time.Time `json:"ts_utc"`
	Kind      Kind      `json:"kind"`
	Amount    int64     `json:"amount"`
}

// Limits holds the monthly free-tier allowance per kind.
type Limits struct {
	STTSecondsLimit  int64
	TTSCharsLimit    int64
	PronSecondsLimit int64
}

// Of returns the limit configured for kind.
func (l Limits) Of(kind Kind) int64 {
	switch kind {
	case KindSTTSeconds:
		return l.STTSecondsLimit
	case KindTTSChars:
		return l.TTSCharsLimit
	case KindPronSeconds:
		return l.PronSecondsLimit
	}
	return 0
}

// Totals maps every kind to a summed amount. Kinds without events are
// present with a zero value.
type Totals map[Kind]int64

// NewTotals returns zeroed totals for every kind.
func NewTotals() Totals {
	t := make(Totals, len(Kinds))
	for _, k := range Kinds {
		t[k] = 0
	}
	return t
}

// ToTotals expresses l as Totals so it serializes the same way as usage.
func (l Limits) ToTotals() Totals {
	t := NewTotals()
	for _, k := range Kinds {
		t[k] = l.Of(k)
	}
	return t
}

// Remaining returns max(limit - used, 0) per kind.
func Remaining(limits Limits, used Totals) Totals {
	t := NewTotals()
	for _, k := range Kinds {
		left := limits.Of(k) - used[k]
		if left < 0 {
			left = 0
		}
		t[k] = left
	}
	return t
}

const monthLayout = "2006-01"

// MonthKey formats t as YYYY-MM in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// DayRange returns the half-open UTC day containing t.
func DayRange(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// MonthRange returns the half-open UTC month named by key (YYYY-MM).
func MonthRange(key string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(monthLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q: expected YYYY-MM", key)
	}
	return start, start.AddDate(0, 1, 0), nil
}
