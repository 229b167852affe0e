// Package convo manages conversation records: ordered turns capped at the
// most recent MaxTurns, persisted on every mutation so history survives
// restarts.
package convo

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation id is unknown.
var ErrNotFound = errors.New("convo: conversation not found")

// MaxTurns is the number of most-recent turns retained per conversation.
// Older turns are dropped on append.
const MaxTurns = 10

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are immutable once
// appended; only trimming removes them.
type Turn struct {
	Timestamp time.Time `msgpack:"ts" json:"timestamp"`
	Role      Role      `msgpack:"role" json:"role"`
	Text      string    `msgpack:"text" json:"text"`

	// ArtifactID references an uploaded artifact by id. The turn does
	// not own the artifact; deleting it later leaves history intact.
	ArtifactID   string `msgpack:"artifact_id,omitempty" json:"artifact_id,omitempty"`
	ArtifactName string `msgpack:"artifact_name,omitempty" json:"artifact_name,omitempty"`

	// Transcribed marks a turn whose text was derived from speech
	// recognition; Transcript holds the raw transcription.
	Transcribed bool   `msgpack:"transcribed,omitempty" json:"transcribed,omitempty"`
	Transcript  string `msgpack:"transcript,omitempty" json:"transcript,omitempty"`

	// HandlerID and HandlerName record which specialist produced an
	// assistant turn.
	HandlerID   string `msgpack:"handler_id,omitempty" json:"handler_id,omitempty"`
	HandlerName string `msgpack:"handler_name,omitempty" json:"handler_name,omitempty"`
}

// Record is one conversation: an id plus its retained turns in
// insertion order.
type Record struct {
	ID    string `msgpack:"id" json:"id"`
	Turns []Turn `msgpack:"turns" json:"turns"`
}

// Append adds a turn, dropping the oldest entries so that at most
// MaxTurns remain.
func (r *Record) Append(t Turn) {
	r.Turns = append(r.Turns, t)
	if n := len(r.Turns); n > MaxTurns {
		r.Turns = r.Turns[n-MaxTurns:]
	}
}

// HasArtifact reports whether any retained turn references the given
// artifact id. Used to attach a file to a conversation at most once.
func (r *Record) HasArtifact(id string) bool {
	if id == "" {
		return false
	}
	for _, t := range r.Turns {
		if t.ArtifactID == id {
			return true
		}
	}
	return false
}

// Summary is the listing projection of a conversation.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastActivity time.Time `json:"last_message_time"`
	TurnCount    int       `json:"message_count"`
}

const titleRunes = 50

// Title derives a listing title from the first retained turn,
// truncated to 50 characters.
func (r *Record) Title() string {
	if len(r.Turns) == 0 {
		return ""
	}
	text := []rune(r.Turns[0].Text)
	if len(text) > titleRunes {
		return string(text[:titleRunes]) + "..."
	}
	return string(text)
}

// Summarize builds the listing projection for the record.
func (r *Record) Summarize() Summary {
	s := Summary{ID: r.ID, Title: r.Title(), TurnCount: len(r.Turns)}
	if n := len(r.Turns); n > 0 {
		s.LastActivity = r.Turns[n-1].Timestamp
	}
	return s
}
