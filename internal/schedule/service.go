package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/stellarlinkco/meditime/internal/clock"
)

// Service owns the pending reminder set. One-shot reminders ("once"/"date")
// are driven by a one-second tick loop against their resolved instant;
// everyday reminders are registered with a cron runner. The set is persisted
// as JSON and re-armed on startup: entries whose instant passed while the
// process was down fire immediately, flagged overdue.
type Service struct {
	storePath string
	mu        sync.Mutex
	reminders []Reminder
	OnFire    func(r Reminder, overdue bool) error
	cron      *rcron.Cron
	entryMap  map[string]rcron.EntryID // reminder ID -> cron entry ID
	cancel    context.CancelFunc
	stopCh    chan struct{}
	startedAt time.Time
	now       func() time.Time
}

func NewService(storePath string) *Service {
	return &Service{
		storePath: storePath,
		entryMap:  make(map[string]rcron.EntryID),
		now:       time.Now,
	}
}

// Load reads the persisted reminder set without starting the runners,
// for offline inspection and editing.
func (s *Service) Load() error {
	return s.load()
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.stopCh = stopCh
	s.startedAt = s.now()
	s.mu.Unlock()

	if err := s.load(); err != nil {
		log.Printf("[schedule] warning: failed to load reminders: %v", err)
	}

	s.cron = rcron.New(rcron.WithSeconds())

	s.mu.Lock()
	for i := range s.reminders {
		r := &s.reminders[i]
		if r.Enabled && r.Repeat == RepeatEveryday {
			// Instants drift while the process is down; recompute.
			r.TriggerAtMs = clock.NextDaily(r.Time, s.now()).UnixMilli()
			s.registerDaily(r)
		}
	}
	s.mu.Unlock()

	s.cron.Start()
	log.Printf("[schedule] started with %d reminders", len(s.reminders))

	go s.tickLoop(runCtx)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
			return
		}
	}()

	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopCh := s.stopCh
	s.cancel = nil
	s.stopCh = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if stopCh != nil {
		close(stopCh)
	}

	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[schedule] stop timeout waiting for running entries")
		}
	}
	log.Printf("[schedule] stopped")
}

// Add validates a request, resolves its wall time to an absolute instant,
// spaces it against the existing set, and persists it.
func (s *Service) Add(req Request) (*Reminder, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	var triggerAt time.Time
	var err error
	switch req.Repeat {
	case RepeatEveryday:
		triggerAt = clock.NextDaily(req.Time, now)
	default:
		triggerAt, err = clock.Resolve(req.Time, req.Date, now)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	triggerAt = ResolveConflicts(triggerAt, s.occupiedLocked(""))

	// The cron registration and every restart re-arm derive from the wall
	// time, so an everyday reminder keeps its resolved spacing only if the
	// spacing is folded back into the wall time itself.
	if req.Repeat == RepeatEveryday {
		req.Time = clock.WallTimeOf(triggerAt)
	}

	r := newReminder(req, triggerAt)
	s.reminders = append(s.reminders, r)

	if r.Repeat == RepeatEveryday && s.cron != nil {
		s.registerDaily(&s.reminders[len(s.reminders)-1])
	}

	if err := s.save(); err != nil {
		return nil, fmt.Errorf("save reminders: %w", err)
	}

	return &r, nil
}

func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.reminders {
		if r.ID == id {
			if entryID, ok := s.entryMap[id]; ok {
				s.cron.Remove(entryID)
				delete(s.entryMap, id)
			}
			s.reminders = append(s.reminders[:i], s.reminders[i+1:]...)
			_ = s.save()
			return true
		}
	}
	return false
}

func (s *Service) List() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Reminder, len(s.reminders))
	copy(result, s.reminders)
	return result
}

func (s *Service) Enable(id string, enabled bool) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.reminders {
		if s.reminders[i].ID != id {
			continue
		}
		s.reminders[i].Enabled = enabled
		if s.reminders[i].Repeat == RepeatEveryday && s.cron != nil {
			if enabled {
				if _, ok := s.entryMap[id]; !ok {
					s.registerDaily(&s.reminders[i])
				}
			} else {
				if entryID, ok := s.entryMap[id]; ok {
					s.cron.Remove(entryID)
					delete(s.entryMap, id)
				}
			}
		}
		_ = s.save()
		r := s.reminders[i]
		return &r, nil
	}
	return nil, fmt.Errorf("reminder %s not found", id)
}

// occupiedLocked returns the instants of all enabled reminders except the one
// with the given ID. Caller holds s.mu.
func (s *Service) occupiedLocked(exceptID string) []time.Time {
	occupied := make([]time.Time, 0, len(s.reminders))
	for _, r := range s.reminders {
		if !r.Enabled || r.ID == exceptID {
			continue
		}
		occupied = append(occupied, r.TriggerAt())
	}
	return occupied
}

func (s *Service) registerDaily(r *Reminder) {
	expr := fmt.Sprintf("0 %d %d * * *", r.Time.Minute, r.Time.Hour24())
	id := r.ID
	entryID, err := s.cron.AddFunc(expr, func() {
		s.fireDaily(id)
	})
	if err != nil {
		log.Printf("[schedule] failed to register %s (%s): %v", r.Medicine, expr, err)
		return
	}
	s.entryMap[r.ID] = entryID
}

func (s *Service) fireDaily(id string) {
	s.mu.Lock()
	var due *Reminder
	for i := range s.reminders {
		if s.reminders[i].ID == id {
			r := s.reminders[i]
			due = &r
			break
		}
	}
	s.mu.Unlock()

	if due == nil || !due.Enabled {
		return
	}
	s.fire(*due, false)

	s.mu.Lock()
	for i := range s.reminders {
		if s.reminders[i].ID == id {
			s.reminders[i].TriggerAtMs = clock.NextDaily(s.reminders[i].Time, s.now()).UnixMilli()
			break
		}
	}
	_ = s.save()
	s.mu.Unlock()
}

func (s *Service) fire(r Reminder, overdue bool) {
	log.Printf("[schedule] firing %s (%s %s)", r.ID, r.Medicine, r.Dose)

	if s.OnFire == nil {
		log.Printf("[schedule] no OnFire handler set")
		return
	}

	err := s.OnFire(r, overdue)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.reminders {
		if s.reminders[i].ID != r.ID {
			continue
		}
		s.reminders[i].State.LastFiredAtMs = s.now().UnixMilli()
		if err != nil {
			s.reminders[i].State.LastStatus = "error"
			s.reminders[i].State.LastError = err.Error()
			log.Printf("[schedule] fire %s error: %v", r.Medicine, err)
		} else {
			s.reminders[i].State.LastStatus = "ok"
			s.reminders[i].State.LastError = ""
		}

		// One-shots leave the pending set once fired.
		if s.reminders[i].Repeat != RepeatEveryday {
			s.reminders = append(s.reminders[:i], s.reminders[i+1:]...)
		}
		break
	}

	_ = s.save()
}

func (s *Service) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			nowMs := s.now().UnixMilli()
			s.mu.Lock()
			startMs := s.startedAt.UnixMilli()
			var due []Reminder
			for i := range s.reminders {
				r := &s.reminders[i]
				if !r.Enabled || r.Repeat == RepeatEveryday {
					continue
				}
				if nowMs >= r.TriggerAtMs {
					due = append(due, *r)
				}
			}
			s.mu.Unlock()

			for _, r := range due {
				s.fire(r, r.TriggerAtMs < startMs)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &s.reminders)
}

func (s *Service) save() error {
	dir := filepath.Dir(s.storePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.reminders, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.storePath, data, 0644)
}
