package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stellarlinkco/meditime/internal/clock"
)

func onceAt(hour, minute int, meridiem string) Request {
	return Request{
		Medicine: "Aspirin",
		Dose:     "20 mg",
		Time:     clock.WallTime{Hour: hour, Minute: minute, Meridiem: meridiem},
		Repeat:   RepeatOnce,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(filepath.Join(t.TempDir(), "reminders.json"))
}

func TestService_AddAndList(t *testing.T) {
	tmpDir := t.TempDir()
	storePath := filepath.Join(tmpDir, "reminders.json")
	s := NewService(storePath)

	r, err := s.Add(onceAt(11, 30, clock.PM))
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if r.ID == "" {
		t.Error("reminder ID should not be empty")
	}
	if !r.Enabled {
		t.Error("reminder should be enabled by default")
	}
	if r.Medicine != "Aspirin" || r.Dose != "20 mg" {
		t.Errorf("got %s %s", r.Medicine, r.Dose)
	}

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}

	// Verify persistence
	data, err := os.ReadFile(storePath)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var stored []Reminder
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored reminders = %d, want 1", len(stored))
	}
}

func TestService_Add_EmptyMedicineRejected(t *testing.T) {
	s := newTestService(t)

	req := onceAt(8, 0, clock.AM)
	req.Medicine = "  "
	if _, err := s.Add(req); !errors.Is(err, ErrEmptyMedicine) {
		t.Errorf("err = %v, want ErrEmptyMedicine", err)
	}
	if len(s.List()) != 0 {
		t.Error("rejected request must not enter the pending set")
	}
}

func TestService_Add_InvalidTimeRejected(t *testing.T) {
	s := newTestService(t)

	req := onceAt(13, 0, clock.AM)
	if _, err := s.Add(req); err == nil {
		t.Error("expected error for hour 13")
	}
}

func TestService_Add_PastExplicitDateRejected(t *testing.T) {
	s := newTestService(t)

	d := clock.Date{Year: 2000, Month: time.January, Day: 1}
	req := onceAt(8, 0, clock.AM)
	req.Repeat = RepeatDate
	req.Date = &d
	if _, err := s.Add(req); !errors.Is(err, clock.ErrTooSoon) {
		t.Errorf("err = %v, want ErrTooSoon", err)
	}
}

func TestService_Add_ConflictingInstantsSpaced(t *testing.T) {
	s := newTestService(t)

	first, err := s.Add(onceAt(10, 0, clock.PM))
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	second, err := s.Add(onceAt(10, 0, clock.PM))
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	gap := second.TriggerAtMs - first.TriggerAtMs
	if gap < 0 {
		gap = -gap
	}
	if gap < MinGap.Milliseconds() {
		t.Errorf("instants %dms apart, want >= %dms", gap, MinGap.Milliseconds())
	}
	if second.TriggerAtMs != first.TriggerAtMs+time.Minute.Milliseconds() {
		t.Errorf("second should land exactly one minute after first")
	}
}

func TestService_Remove(t *testing.T) {
	s := newTestService(t)

	r, _ := s.Add(onceAt(11, 0, clock.PM))

	if !s.Remove(r.ID) {
		t.Error("Remove returned false")
	}
	if len(s.List()) != 0 {
		t.Error("reminder not removed")
	}
	if s.Remove("nonexistent") {
		t.Error("Remove should return false for nonexistent")
	}
}

func TestService_Enable(t *testing.T) {
	s := newTestService(t)

	r, _ := s.Add(onceAt(11, 0, clock.PM))

	updated, err := s.Enable(r.ID, false)
	if err != nil {
		t.Fatalf("Enable error: %v", err)
	}
	if updated.Enabled {
		t.Error("reminder should be disabled")
	}

	updated, err = s.Enable(r.ID, true)
	if err != nil {
		t.Fatalf("Enable error: %v", err)
	}
	if !updated.Enabled {
		t.Error("reminder should be enabled")
	}

	if _, err := s.Enable("nonexistent", true); err == nil {
		t.Error("expected error for nonexistent reminder")
	}
}

func TestService_StartStop(t *testing.T) {
	s := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	cancel()
	s.Stop()
}

func TestService_Start_ParentCancelInvokesStop(t *testing.T) {
	s := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		stopped := s.cancel == nil && s.stopCh == nil
		s.mu.Unlock()
		if stopped {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	s.Stop()
	t.Fatal("expected parent context cancellation to trigger Stop")
}

func TestService_TickLoop_FiresDueReminder(t *testing.T) {
	s := newTestService(t)

	var fired atomic.Int32
	s.OnFire = func(r Reminder, overdue bool) error {
		fired.Add(1)
		if overdue {
			t.Error("freshly scheduled reminder should not be overdue")
		}
		return nil
	}

	// Inject a reminder due just after startup; Add would push it a minute out.
	r := newReminder(onceAt(8, 0, clock.AM), time.Now().Add(1200*time.Millisecond))
	s.reminders = append(s.reminders, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if fired.Load() == 0 {
		t.Fatal("due reminder was not fired")
	}

	// One-shots leave the pending set once fired.
	deadline = time.Now().Add(time.Second)
	for len(s.List()) != 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if n := len(s.List()); n != 0 {
		t.Errorf("pending set has %d entries after fire, want 0", n)
	}
}

func TestService_Restart_FiresMissedReminderAsOverdue(t *testing.T) {
	tmpDir := t.TempDir()
	storePath := filepath.Join(tmpDir, "reminders.json")

	// Simulate a previous session that scheduled a reminder and died.
	missed := newReminder(onceAt(8, 0, clock.AM), time.Now().Add(-10*time.Minute))
	data, _ := json.MarshalIndent([]Reminder{missed}, "", "  ")
	if err := os.WriteFile(storePath, data, 0644); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	s := NewService(storePath)
	var gotOverdue atomic.Bool
	var fired atomic.Int32
	s.OnFire = func(r Reminder, overdue bool) error {
		gotOverdue.Store(overdue)
		fired.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if fired.Load() == 0 {
		t.Fatal("missed reminder was not re-armed on startup")
	}
	if !gotOverdue.Load() {
		t.Error("missed reminder should fire flagged overdue")
	}
}

func TestService_Fire_HandlerError(t *testing.T) {
	s := newTestService(t)

	s.OnFire = func(r Reminder, overdue bool) error {
		return fmt.Errorf("handler error")
	}

	r := newReminder(onceAt(8, 0, clock.AM), time.Now().Add(time.Hour))
	r.Repeat = RepeatEveryday // keep it in the set so state is inspectable
	s.reminders = append(s.reminders, r)

	s.fire(r, false)

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("expected reminder to remain, got %d", len(list))
	}
	if list[0].State.LastStatus != "error" {
		t.Errorf("lastStatus = %q, want error", list[0].State.LastStatus)
	}
	if list[0].State.LastError != "handler error" {
		t.Errorf("lastError = %q", list[0].State.LastError)
	}
}

func TestService_Fire_NoHandler(t *testing.T) {
	s := newTestService(t)

	r := newReminder(onceAt(8, 0, clock.AM), time.Now().Add(time.Hour))
	s.reminders = append(s.reminders, r)

	// Should not panic when OnFire is nil.
	s.fire(r, false)
}

func TestService_Everyday_RegistersCronEntry(t *testing.T) {
	s := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	req := onceAt(9, 0, clock.AM)
	req.Repeat = RepeatEveryday
	r, err := s.Add(req)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	if len(s.entryMap) != 1 {
		t.Fatalf("expected 1 cron entry, got %d", len(s.entryMap))
	}

	// Disabling removes the entry; re-enabling restores it.
	if _, err := s.Enable(r.ID, false); err != nil {
		t.Fatalf("Enable(false) error: %v", err)
	}
	if len(s.entryMap) != 0 {
		t.Fatalf("expected 0 cron entries after disable, got %d", len(s.entryMap))
	}
	if _, err := s.Enable(r.ID, true); err != nil {
		t.Fatalf("Enable(true) error: %v", err)
	}
	if len(s.entryMap) != 1 {
		t.Fatalf("expected 1 cron entry after re-enable, got %d", len(s.entryMap))
	}

	if !s.Remove(r.ID) {
		t.Fatal("Remove returned false")
	}
	if len(s.entryMap) != 0 {
		t.Fatalf("expected 0 cron entries after remove, got %d", len(s.entryMap))
	}
}

func TestService_Everyday_SameWallTimeSpacedAcrossRestart(t *testing.T) {
	tmpDir := t.TempDir()
	storePath := filepath.Join(tmpDir, "reminders.json")

	everyday := func() Request {
		req := onceAt(9, 0, clock.AM)
		req.Repeat = RepeatEveryday
		return req
	}

	s1 := NewService(storePath)
	first, err := s1.Add(everyday())
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	second, err := s1.Add(everyday())
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	gap := second.TriggerAtMs - first.TriggerAtMs
	if gap < 0 {
		gap = -gap
	}
	if gap < MinGap.Milliseconds() {
		t.Fatalf("instants %dms apart, want >= %dms", gap, MinGap.Milliseconds())
	}
	if second.Time == first.Time {
		t.Error("second reminder should carry the shifted wall time")
	}

	// A fresh process recomputes everyday instants from the wall times; the
	// spacing must survive that.
	s2 := NewService(storePath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s2.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s2.Stop()

	list := s2.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 persisted reminders, got %d", len(list))
	}
	gap = list[1].TriggerAtMs - list[0].TriggerAtMs
	if gap < 0 {
		gap = -gap
	}
	if gap < MinGap.Milliseconds() {
		t.Errorf("instants %dms apart after restart, want >= %dms", gap, MinGap.Milliseconds())
	}
	if len(s2.entryMap) != 2 {
		t.Errorf("expected 2 cron entries after restart, got %d", len(s2.entryMap))
	}
}

func TestService_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	storePath := filepath.Join(tmpDir, "reminders.json")

	s1 := NewService(storePath)
	s1.Add(onceAt(10, 0, clock.PM))
	s1.Add(onceAt(11, 0, clock.PM))

	s2 := NewService(storePath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s2.Start(ctx)
	defer s2.Stop()

	if got := len(s2.List()); got != 2 {
		t.Fatalf("expected 2 persisted reminders, got %d", got)
	}
}

func TestService_Load_CorruptStoreFallsBackEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	storePath := filepath.Join(tmpDir, "reminders.json")
	os.WriteFile(storePath, []byte("{not json"), 0644)

	s := NewService(storePath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start logs the parse failure and continues with an empty set.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start should not fail on corrupt store: %v", err)
	}
	defer s.Stop()

	if len(s.List()) != 0 {
		t.Error("corrupt store should yield empty set")
	}
}

func TestRequest_Validate(t *testing.T) {
	valid := onceAt(8, 0, clock.AM)

	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"valid", func(r *Request) {}, nil},
		{"empty medicine", func(r *Request) { r.Medicine = "" }, ErrEmptyMedicine},
		{"empty dose", func(r *Request) { r.Dose = "" }, ErrEmptyDose},
		{"bad repeat", func(r *Request) { r.Repeat = "weekly" }, ErrBadRepeat},
		{"date without date", func(r *Request) { r.Repeat = RepeatDate }, ErrBadRepeat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if err := req.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
