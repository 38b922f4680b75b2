package client

import (
	"time"
)

// MessageStatus is the lifecycle state of a message in the topic cache.
type MessageStatus int

// Message lifecycle states in the order of progression.
const (
	// StatusNone: the message is not a locally originated draft.
	StatusNone MessageStatus = iota
	// StatusQueued: the draft is created but not yet sent.
	StatusQueued
	// StatusSending: the draft is in transit.
	StatusSending
	// StatusFailed: sending failed, the draft remains cached.
	StatusFailed
	// StatusSent: the server acknowledged the message and assigned a
	// sequence id.
	StatusSent
	// StatusReceived: reported as delivered to the other party.
	StatusReceived
	// StatusRead: reported as seen by the other party.
	StatusRead
	// StatusToMe: an incoming message from another user.
	StatusToMe
)

func (s MessageStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusSending:
		return "sending"
	case StatusFailed:
		return "failed"
	case StatusSent:
		return "sent"
	case StatusReceived:
		return "received"
	case StatusRead:
		return "read"
	case StatusToMe:
		return "to me"
	}
	return "none"
}

// Message is a single cached entry in a topic: either a chat message or a
// placeholder for a known range of messages missing from the cache.
type Message struct {
	// Topic which owns the message.
	Topic string
	// From is the id of the sender; empty for system messages and drafts.
	From string
	// Ts is the timestamp assigned by the server, or the local creation time
	// for unsent drafts.
	Ts time.Time
	// Seq is the server-issued sequence id. Drafts hold a provisional id
	// from the local range until acknowledged.
	Seq int
	// Hi, when non-zero, marks this entry as a gap: messages with ids in
	// [Seq, Hi) are known to exist but are not cached.
	Hi int
	// Head is message header key-value pairs.
	Head map[string]any
	// Content is the message payload.
	Content any
	// Status of the message lifecycle.
	Status MessageStatus

	// noForwarding suppresses sending a {note} receipt for this entry.
	noForwarding bool
	// cancelled marks a draft recalled before sending completed.
	cancelled bool
}

// IsGap reports whether the entry is a placeholder for missing messages
// rather than an actual message.
func (m *Message) IsGap() bool {
	return m.Hi > 0
}

// IsPending reports whether the message is an unacknowledged local draft.
func (m *Message) IsPending() bool {
	return m.Seq >= LocalSeqBase
}

// compareMsgs orders cache entries by sequence id.
func compareMsgs(a, b *Message) int {
	return a.Seq - b.Seq
}
