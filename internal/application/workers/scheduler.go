package workers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/execution-hub/agent-orchestrator/internal/application/registry"
)

var consultationHours = []int{9, 10, 11, 14, 15, 16}

const consultationLength = time.Hour

// Scheduler books consultations on business days in the office time zone.
type Scheduler struct {
	mu       sync.Mutex
	loc      *time.Location
	attorney string
	booked   map[time.Time]string
}

func NewScheduler(loc *time.Location, attorney string) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{loc: loc, attorney: attorney, booked: map[time.Time]string{}}
}

func isBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// AvailableDates returns the next n business days after from.
func (s *Scheduler) AvailableDates(_ context.Context, from time.Time, n int) ([]time.Time, error) {
	day := dateOf(from.In(s.loc))
	out := make([]time.Time, 0, n)
	for len(out) < n {
		day = day.AddDate(0, 0, 1)
		if isBusinessDay(day) {
			out = append(out, day)
		}
	}
	return out, nil
}

// FindSlots returns the open slots on the preferred date. Only the calendar
// date of PreferredDate is used; its zone is ignored. A preferred time of
// "morning" or "afternoon" narrows the result.
func (s *Scheduler) FindSlots(ctx context.Context, req registry.SlotRequest) ([]registry.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	y, m, d := req.PreferredDate.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	if !isBusinessDay(day) {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []registry.Slot
	for _, h := range consultationHours {
		switch strings.ToLower(req.PreferredTime) {
		case "morning":
			if h >= 12 {
				continue
			}
		case "afternoon":
			if h < 12 {
				continue
			}
		}
		start := day.Add(time.Duration(h) * time.Hour)
		if _, taken := s.booked[start]; taken {
			continue
		}
		out = append(out, registry.Slot{Start: start, Duration: consultationLength, Attorney: s.attorney})
	}
	return out, nil
}

// Book reserves slot for userID and issues a confirmation number.
func (s *Scheduler) Book(ctx context.Context, userID string, slot registry.Slot, _ registry.SlotRequest) (*registry.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.booked[slot.Start]; taken {
		return &registry.Booking{Error: fmt.Sprintf("The %s slot is no longer available.", slot.Start.Format("Jan 2 15:04"))}, nil
	}
	s.booked[slot.Start] = userID
	return &registry.Booking{
		Success:            true,
		ConfirmationNumber: "VLF-" + strings.ToUpper(uuid.NewString()[:8]),
	}, nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
