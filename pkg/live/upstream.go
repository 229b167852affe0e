package live

import (
	"context"
	"iter"

	"github.com/classtide/omnitutor/pkg/tutor"
)

// Upstream is one live connection to the realtime model. Send-side
// methods must be safe for concurrent use; Events is consumed by a
// single pump goroutine.
type Upstream interface {
	// SendAudio appends raw PCM16 audio to the model's input buffer.
	SendAudio(data []byte) error

	// CommitAudio force-closes the current input audio turn.
	CommitAudio() error

	// Interrupt cancels the in-flight model response.
	Interrupt() error

	// SendImage enqueues a structured user message carrying an image
	// data URL plus an optional text prompt.
	SendImage(imageURL, prompt string) error

	// Configure pushes session parameters to the model.
	Configure(cfg Config) error

	// Forward sends a client-originated event verbatim.
	Forward(event map[string]any) error

	// Events yields normalized model events until the connection
	// closes or a read error occurs.
	Events() iter.Seq2[AgentEvent, error]

	Close() error
}

// Dialer opens upstream connections, one per session.
type Dialer interface {
	Dial(ctx context.Context) (Upstream, error)
}

// ChatBackend answers recognized voice questions through the tutoring
// request path. *tutor.Service satisfies it.
type ChatBackend interface {
	Process(ctx context.Context, req tutor.Request) (*tutor.Response, error)
}

var _ ChatBackend = (*tutor.Service)(nil)
