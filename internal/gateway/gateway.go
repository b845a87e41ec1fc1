package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/stellarlinkco/meditime/internal/alarm"
	"github.com/stellarlinkco/meditime/internal/bus"
	"github.com/stellarlinkco/meditime/internal/channel"
	"github.com/stellarlinkco/meditime/internal/clock"
	"github.com/stellarlinkco/meditime/internal/config"
	"github.com/stellarlinkco/meditime/internal/history"
	"github.com/stellarlinkco/meditime/internal/schedule"
	"github.com/stellarlinkco/meditime/internal/voice"
)

// defaultCatalog stands in until a browser reports its speechSynthesis
// voices. IDs follow the common desktop voice naming.
var defaultCatalog = voice.CatalogProvider{Catalog: []voice.Voice{
	{ID: "Google US English", Lang: "en-US"},
	{ID: "Google UK English Female", Lang: "en-GB"},
	{ID: "Google español", Lang: "es-ES"},
	{ID: "Google français", Lang: "fr-FR"},
	{ID: "Google Deutsch", Lang: "de-DE"},
	{ID: "Google हिन्दी", Lang: "hi-IN"},
	{ID: "Google 普通话（中国大陆）", Lang: "zh-CN"},
}}

// Options for creating a Gateway
type Options struct {
	Voices        voice.Provider
	ReminderStore string         // overrides the reminder store path (for testing)
	SignalChan    chan os.Signal // for testing signal handling
}

// Gateway wires the scheduler, the ring state machine, the dose ledger, and
// the delivery channels together around the message bus.
type Gateway struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	channels *channel.ChannelManager
	sched    *schedule.Service
	alarm    *alarm.Service
	ledger   *history.Ledger
	voices   voice.Provider

	mu           sync.Mutex
	snoozeTimers map[string]*time.Timer

	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:          cfg,
		snoozeTimers: make(map[string]*time.Timer),
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	g.voices = opts.Voices
	if g.voices == nil {
		g.voices = defaultCatalog
	}

	dbPath := strings.TrimSpace(cfg.History.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.DataDir(), "history.db")
	}
	ledger, err := history.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history ledger: %w", err)
	}
	g.ledger = ledger

	repeat := time.Duration(cfg.Alarm.RepeatSeconds) * time.Second
	g.alarm = alarm.New(repeat)
	g.alarm.OnAnnounce = g.announce
	g.alarm.OnAcknowledged = g.acknowledged
	g.alarm.OnSnoozed = g.snoozed

	storePath := opts.ReminderStore
	if storePath == "" {
		storePath = filepath.Join(config.DataDir(), "reminders.json")
	}
	g.sched = schedule.NewService(storePath)
	g.sched.OnFire = func(r schedule.Reminder, overdue bool) error {
		g.alarm.Fire(r, overdue)
		return nil
	}

	g.signalChan = opts.SignalChan

	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus)
	if err != nil {
		_ = g.ledger.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	return g, nil
}

// Scheduler exposes the reminder scheduler for the CLI surface.
func (g *Gateway) Scheduler() *schedule.Service {
	return g.sched
}

// Ledger exposes the dose history for the CLI surface.
func (g *Gateway) Ledger() *history.Ledger {
	return g.ledger
}

// announce composes the localized speech, picks a voice, and broadcasts the
// ring to every channel. Called on first ring and on every repeat.
func (g *Gateway) announce(r schedule.Reminder, overdue bool) {
	lang := g.cfg.Patient.Language
	if lang == "" {
		lang = config.DefaultLanguage
	}

	payload := &bus.RingPayload{
		ReminderID: r.ID,
		Medicine:   r.Medicine,
		Dose:       r.Dose,
		Image:      r.Image,
		Speech:     voice.Announcement(lang, g.cfg.Patient.Name, r.Medicine, r.Dose),
		Lang:       lang,
		Overdue:    overdue,
	}

	if g.cfg.Alarm.Voice != "" {
		payload.VoiceID = g.cfg.Alarm.Voice
	} else if v, ok := voice.Select(g.voices, lang); ok {
		payload.VoiceID = v.ID
	}

	g.bus.Outbound <- bus.OutboundMessage{Ring: payload}
}

// acknowledged appends the dose to the ledger and silences every channel.
func (g *Gateway) acknowledged(r schedule.Reminder, takenAt time.Time) {
	if _, err := g.ledger.Append(history.Entry{
		Medicine: r.Medicine,
		Dose:     r.Dose,
		Image:    r.Image,
		TakenAt:  takenAt,
	}); err != nil {
		log.Printf("[gateway] record dose: %v", err)
	}

	g.bus.Outbound <- bus.OutboundMessage{StopRing: true}
	g.bus.Outbound <- bus.OutboundMessage{
		Content: fmt.Sprintf("Dose recorded: %s, %s.", r.Medicine, r.Dose),
	}
}

// snoozed silences the ring and re-fires the same reminder after the
// configured snooze window. Snoozes live in memory only; a restart drops
// them and the missed-dose path takes over.
func (g *Gateway) snoozed(r schedule.Reminder) {
	g.bus.Outbound <- bus.OutboundMessage{StopRing: true}

	mins := g.cfg.Alarm.SnoozeMinutes
	if mins <= 0 {
		mins = config.DefaultSnoozeMinutes
	}
	delay := time.Duration(mins) * time.Minute

	g.mu.Lock()
	if old, ok := g.snoozeTimers[r.ID]; ok {
		old.Stop()
	}
	g.snoozeTimers[r.ID] = time.AfterFunc(delay, func() {
		g.mu.Lock()
		delete(g.snoozeTimers, r.ID)
		g.mu.Unlock()
		g.alarm.Fire(r, false)
	})
	g.mu.Unlock()

	g.bus.Outbound <- bus.OutboundMessage{
		Content: fmt.Sprintf("Snoozed %s for %d minutes.", r.Medicine, mins),
	}
	log.Printf("[gateway] snoozed %s for %s", r.Medicine, delay)
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

			reply := g.handleCommand(msg.Content)
			if reply != "" {
				g.bus.Outbound <- bus.OutboundMessage{
					Channel: msg.Channel,
					ChatID:  msg.ChatID,
					Content: reply,
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleCommand interprets one chat command. Acknowledge and snooze reply
// through their alarm callbacks; the returned string covers everything else.
func (g *Gateway) handleCommand(content string) string {
	fields := strings.Fields(strings.TrimSpace(content))
	if len(fields) == 0 {
		return ""
	}

	cmd := strings.ToLower(fields[0])
	switch cmd {
	case "/taken", "taken":
		if _, ok := g.alarm.Acknowledge(); !ok {
			return "Nothing is ringing right now."
		}
		return "" // confirmation goes out via the acknowledged callback

	case "/snooze", "snooze":
		if _, ok := g.alarm.Snooze(); !ok {
			return "Nothing is ringing right now."
		}
		return ""

	case "/add", "add":
		return g.handleAdd(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(content), fields[0])))

	case "/remove", "remove":
		if len(fields) < 2 {
			return "Usage: /remove <reminder-id>"
		}
		if !g.sched.Remove(fields[1]) {
			return fmt.Sprintf("No reminder with id %s.", fields[1])
		}
		return "Reminder removed."

	case "/list", "list":
		return formatReminders(g.sched.List())

	case "/history", "history":
		limit := 10
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				limit = n
			}
		}
		entries, err := g.ledger.List(limit)
		if err != nil {
			log.Printf("[gateway] list history: %v", err)
			return "Could not read the dose history."
		}
		return formatHistory(entries)

	case "/help", "help":
		return helpText

	default:
		return helpText
	}
}

// handleAdd parses "Medicine | dose | hh:mm am/pm | repeat [| yyyy-mm-dd]".
func (g *Gateway) handleAdd(args string) string {
	parts := strings.Split(args, "|")
	if len(parts) < 4 {
		return "Usage: /add Medicine | 20 mg | 08:30 am | once|everyday|date [| 2026-09-14]"
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	timeFields := strings.Fields(parts[2])
	if len(timeFields) != 2 {
		return "Time must look like: 08:30 am"
	}
	wall, err := clock.ParseWallTime(timeFields[0], timeFields[1])
	if err != nil {
		return fmt.Sprintf("Bad time: %v", err)
	}

	req := schedule.Request{
		Medicine: parts[0],
		Dose:     parts[1],
		Time:     wall,
		Repeat:   schedule.RepeatKind(strings.ToLower(parts[3])),
	}
	if req.Repeat == schedule.RepeatDate {
		if len(parts) < 5 {
			return "A dated reminder needs a date: /add ... | date | 2026-09-14"
		}
		d, err := clock.ParseDate(parts[4])
		if err != nil {
			return fmt.Sprintf("Bad date: %v", err)
		}
		req.Date = &d
	}

	r, err := g.sched.Add(req)
	if err != nil {
		return fmt.Sprintf("Could not add the reminder: %v", err)
	}
	return fmt.Sprintf("Reminder set: %s, %s at %s (%s). Id %s.",
		r.Medicine, r.Dose, r.TriggerAt().Format("Mon Jan 2 15:04"), r.Repeat, r.ID)
}

const helpText = `Commands:
/add Medicine | 20 mg | 08:30 am | once|everyday|date [| 2026-09-14]
/list - pending reminders
/remove <id> - cancel a reminder
/taken - mark the ringing dose as taken
/snooze - push the ringing dose back
/history [n] - recent doses taken`

func formatReminders(rs []schedule.Reminder) string {
	if len(rs) == 0 {
		return "No reminders scheduled."
	}
	var sb strings.Builder
	sb.WriteString("Pending reminders:\n")
	for _, r := range rs {
		state := ""
		if !r.Enabled {
			state = " (paused)"
		}
		fmt.Fprintf(&sb, "• %s %s at %s, %s%s\n  id %s\n",
			r.Medicine, r.Dose, r.TriggerAt().Format("Mon Jan 2 15:04"), r.Repeat, state, r.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatHistory(entries []history.Entry) string {
	if len(entries) == 0 {
		return "No doses recorded yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent doses:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "• %s %s — %s\n", e.Medicine, e.Dose, e.TakenAt.Format("Mon Jan 2 15:04"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (g *Gateway) Shutdown() error {
	g.mu.Lock()
	for id, timer := range g.snoozeTimers {
		timer.Stop()
		delete(g.snoozeTimers, id)
	}
	g.mu.Unlock()

	g.alarm.Stop()
	g.sched.Stop()
	_ = g.channels.StopAll()
	if g.ledger != nil {
		if err := g.ledger.Close(); err != nil {
			log.Printf("[gateway] close history ledger warning: %v", err)
		}
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
