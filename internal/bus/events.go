package bus

import "time"

// InboundMessage is a user message or command arriving from a channel
// (telegram text, whatsapp text, webui frame).
type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// RingPayload carries everything a channel needs to present a ringing
// reminder: the visible card, the spoken announcement, and the voice to speak
// it with.
type RingPayload struct {
	ReminderID string `json:"reminderId"`
	Medicine   string `json:"medicine"`
	Dose       string `json:"dose"`
	Image      string `json:"image,omitempty"`
	Speech     string `json:"speech"`
	VoiceID    string `json:"voiceId,omitempty"`
	Lang       string `json:"lang"`
	Overdue    bool   `json:"overdue,omitempty"`
}

// OutboundMessage is routed to one channel, or broadcast to every channel
// when Channel is empty (rings go everywhere).
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	Ring     *RingPayload
	StopRing bool
}
