package schedule

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stellarlinkco/meditime/internal/clock"
)

// RepeatKind selects how a reminder recurs.
type RepeatKind string

const (
	RepeatOnce     RepeatKind = "once"     // next occurrence of the wall time
	RepeatEveryday RepeatKind = "everyday" // every day at the wall time
	RepeatDate     RepeatKind = "date"     // a single explicit date
)

var (
	ErrEmptyMedicine = errors.New("medicine name is required")
	ErrEmptyDose     = errors.New("dose is required")
	ErrBadRepeat     = errors.New("repeat must be once, everyday, or date")
)

// Request is the user-supplied reminder input before scheduling.
type Request struct {
	Medicine string
	Dose     string
	Image    string // optional data-URI or path reference
	Time     clock.WallTime
	Repeat   RepeatKind
	Date     *clock.Date // required for RepeatDate
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Medicine) == "" {
		return ErrEmptyMedicine
	}
	if strings.TrimSpace(r.Dose) == "" {
		return ErrEmptyDose
	}
	switch r.Repeat {
	case RepeatOnce, RepeatEveryday:
	case RepeatDate:
		if r.Date == nil {
			return ErrBadRepeat
		}
	default:
		return ErrBadRepeat
	}
	return r.Time.Validate()
}

// RunState records the outcome of the most recent firing.
type RunState struct {
	LastFiredAtMs int64  `json:"lastFiredAtMs,omitempty"`
	LastStatus    string `json:"lastStatus,omitempty"`
	LastError     string `json:"lastError,omitempty"`
}

// Reminder is a scheduled entry in the pending set. TriggerAtMs is the
// conflict-resolved instant of its next firing.
type Reminder struct {
	ID          string         `json:"id"`
	Medicine    string         `json:"medicine"`
	Dose        string         `json:"dose"`
	Image       string         `json:"image,omitempty"`
	Time        clock.WallTime `json:"time"`
	Repeat      RepeatKind     `json:"repeat"`
	Date        string         `json:"date,omitempty"`
	TriggerAtMs int64          `json:"triggerAtMs"`
	Enabled     bool           `json:"enabled"`
	CreatedAtMs int64          `json:"createdAtMs"`
	State       RunState       `json:"state"`
}

func (r *Reminder) TriggerAt() time.Time {
	return time.UnixMilli(r.TriggerAtMs)
}

func newReminder(req Request, triggerAt time.Time) Reminder {
	r := Reminder{
		ID:          uuid.NewString(),
		Medicine:    strings.TrimSpace(req.Medicine),
		Dose:        strings.TrimSpace(req.Dose),
		Image:       req.Image,
		Time:        req.Time,
		Repeat:      req.Repeat,
		TriggerAtMs: triggerAt.UnixMilli(),
		Enabled:     true,
		CreatedAtMs: time.Now().UnixMilli(),
	}
	if req.Date != nil {
		r.Date = req.Date.String()
	}
	return r
}
