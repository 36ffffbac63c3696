package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
)

// sequence hands out strictly increasing instants with a fixed step so ids
// derived from the clock stay unique within the process.
type sequence struct {
	mu   sync.Mutex
	last time.Time
	step time.Duration
}

func (s *sequence) next(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := now.Truncate(s.step)
	if !t.After(s.last) {
		t = s.last.Add(s.step)
	}
	s.last = t
	return t
}

var (
	dispenseSeq = &sequence{step: time.Millisecond}
	receiptSeq  = &sequence{step: time.Second}
)

// NewDispenseID returns "B-<unix millis>"
func NewDispenseID(now time.Time) string {
	return fmt.Sprintf("B-%d", dispenseSeq.next(now).UnixMilli())
}

// NewReceiptID returns "GE-YYYYMMDD-HHMMSS" in loc
func NewReceiptID(now time.Time, loc *time.Location) string {
	return "GE-" + receiptSeq.next(now).In(loc).Format("20060102-150405")
}

var issueDateLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseIssueDate reads the issue date of a document. Local layouts are
// interpreted in loc; RFC 3339 keeps its offset. Empty means now.
func ParseIssueDate(s string, loc *time.Location, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range issueDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.ValidationField("issue_date", "must be YYYY-MM-DD, YYYY-MM-DDTHH:mm or RFC 3339")
}
