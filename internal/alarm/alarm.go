// Package alarm tracks the single active ("ringing") reminder and its
// announcement loop. A reminder rings until it is explicitly acknowledged or
// snoozed; there is no automatic timeout.
package alarm

import (
	"log"
	"sync"
	"time"

	"github.com/stellarlinkco/meditime/internal/schedule"
)

type State string

const (
	StateIdle    State = "idle"
	StateRinging State = "ringing"
)

// DefaultRepeatInterval is how often the announcement is re-emitted while
// ringing.
const DefaultRepeatInterval = 30 * time.Second

type queued struct {
	reminder schedule.Reminder
	overdue  bool
}

// Service is the reminder lifecycle state machine. At most one reminder is
// ringing at a time; firings that arrive while ringing queue behind it and
// ring after the current one is acknowledged. Callbacks run outside the
// service lock; a failing announcement is non-fatal and the reminder stays
// acknowledgeable.
type Service struct {
	mu         sync.Mutex
	active     *schedule.Reminder
	overdue    bool
	queue      []queued
	repeat     time.Duration
	repeatStop chan struct{}

	// OnAnnounce is invoked when a reminder starts ringing and again every
	// repeat interval until it is dismissed.
	OnAnnounce func(r schedule.Reminder, overdue bool)
	// OnAcknowledged is invoked exactly once per acknowledged reminder.
	OnAcknowledged func(r schedule.Reminder, takenAt time.Time)
	// OnSnoozed is invoked when a ringing reminder is pushed back instead of
	// taken.
	OnSnoozed func(r schedule.Reminder)

	now func() time.Time
}

func New(repeat time.Duration) *Service {
	if repeat <= 0 {
		repeat = DefaultRepeatInterval
	}
	return &Service{
		repeat: repeat,
		now:    time.Now,
	}
}

// Fire transitions Idle -> Ringing, or queues the reminder if one is already
// ringing.
func (s *Service) Fire(r schedule.Reminder, overdue bool) {
	s.mu.Lock()
	if s.active != nil {
		s.queue = append(s.queue, queued{reminder: r, overdue: overdue})
		log.Printf("[alarm] %s queued behind active ring", r.Medicine)
		s.mu.Unlock()
		return
	}
	s.activateLocked(r, overdue)
	announce := s.OnAnnounce
	s.mu.Unlock()

	log.Printf("[alarm] ringing: %s %s (overdue=%v)", r.Medicine, r.Dose, overdue)
	if announce != nil {
		announce(r, overdue)
	}
}

// activateLocked makes r the active reminder and starts its repeat loop.
// Caller holds s.mu and is responsible for the initial announcement.
func (s *Service) activateLocked(r schedule.Reminder, overdue bool) {
	active := r
	s.active = &active
	s.overdue = overdue

	stop := make(chan struct{})
	s.repeatStop = stop
	go s.repeatLoop(stop)
}

func (s *Service) repeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.repeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if s.repeatStop != stop || s.active == nil {
				s.mu.Unlock()
				return
			}
			r := *s.active
			overdue := s.overdue
			announce := s.OnAnnounce
			s.mu.Unlock()

			if announce != nil {
				announce(r, overdue)
			}
		case <-stop:
			return
		}
	}
}

// Acknowledge dismisses the ringing reminder, reports it taken, and rings the
// next queued reminder if any. When Idle it is a no-op and returns false.
func (s *Service) Acknowledge() (*schedule.Reminder, bool) {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil, false
	}

	r := *s.active
	takenAt := s.now()
	s.stopRingLocked()
	acked := s.OnAcknowledged

	next, hasNext := s.dequeueLocked()
	announce := s.OnAnnounce
	s.mu.Unlock()

	log.Printf("[alarm] acknowledged: %s %s", r.Medicine, r.Dose)
	if acked != nil {
		acked(r, takenAt)
	}
	if hasNext {
		log.Printf("[alarm] ringing queued: %s %s", next.reminder.Medicine, next.reminder.Dose)
		if announce != nil {
			announce(next.reminder, next.overdue)
		}
	}
	return &r, true
}

// Snooze dismisses the ringing reminder without marking it taken. When Idle
// it is a no-op and returns false. Rescheduling is the caller's job via
// OnSnoozed.
func (s *Service) Snooze() (*schedule.Reminder, bool) {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil, false
	}

	r := *s.active
	s.stopRingLocked()
	snoozed := s.OnSnoozed

	next, hasNext := s.dequeueLocked()
	announce := s.OnAnnounce
	s.mu.Unlock()

	log.Printf("[alarm] snoozed: %s %s", r.Medicine, r.Dose)
	if snoozed != nil {
		snoozed(r)
	}
	if hasNext {
		if announce != nil {
			announce(next.reminder, next.overdue)
		}
	}
	return &r, true
}

// stopRingLocked clears the active reminder and cancels its repeat loop.
// Caller holds s.mu.
func (s *Service) stopRingLocked() {
	s.active = nil
	s.overdue = false
	if s.repeatStop != nil {
		close(s.repeatStop)
		s.repeatStop = nil
	}
}

// dequeueLocked promotes the oldest queued firing, if any. Caller holds s.mu.
func (s *Service) dequeueLocked() (queued, bool) {
	if len(s.queue) == 0 {
		return queued{}, false
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.activateLocked(next.reminder, next.overdue)
	return next, true
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return StateRinging
	}
	return StateIdle
}

// Active returns the currently ringing reminder, if any.
func (s *Service) Active() (schedule.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return schedule.Reminder{}, false
	}
	return *s.active, true
}

// Stop silences any active ring without acknowledging it. Used on shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRingLocked()
	s.queue = nil
}
