// Package live manages duplex voice sessions: it bridges a client
// transport to an upstream realtime model, normalizes upstream events
// into a closed AgentEvent set, and routes recognized speech through
// the tutoring pipeline.
package live

// AgentEvent is one normalized upstream event. The set is closed: the
// envelope serializer has a projection rule for every variant and
// panics on anything else.
type AgentEvent interface {
	agentEvent()
}

// AgentStart signals that a handler began producing a response.
type AgentStart struct {
	Agent string
}

// AgentEnd signals that a handler finished its response.
type AgentEnd struct {
	Agent string
}

// Handoff signals control moving between handlers.
type Handoff struct {
	From string
	To   string
}

// ToolStart signals a tool invocation beginning.
type ToolStart struct {
	Tool string
}

// ToolEnd carries a finished tool invocation and its output.
type ToolEnd struct {
	Tool   string
	Output any
}

// Audio carries one chunk of response audio.
type Audio struct {
	Data []byte
}

// AudioInterrupted signals that playback was cut off by the user.
type AudioInterrupted struct{}

// AudioEnd signals the end of response audio.
type AudioEnd struct{}

// InputAudioTimeout signals that the server timed out waiting for
// input audio.
type InputAudioTimeout struct{}

// HistoryUpdated carries the full conversation history.
type HistoryUpdated struct {
	History []any
}

// HistoryAdded carries one item appended to the history.
type HistoryAdded struct {
	Item any
}

// GuardrailTripped signals tripped output guardrails.
type GuardrailTripped struct {
	Names []string
}

// RawModelEvent surfaces an upstream event with no richer mapping;
// only its type tag crosses the boundary.
type RawModelEvent struct {
	Type string
}

// ErrorEvent carries an upstream failure.
type ErrorEvent struct {
	Err error
}

func (AgentStart) agentEvent()        {}
func (AgentEnd) agentEvent()          {}
func (Handoff) agentEvent()           {}
func (ToolStart) agentEvent()         {}
func (ToolEnd) agentEvent()           {}
func (Audio) agentEvent()             {}
func (AudioInterrupted) agentEvent()  {}
func (AudioEnd) agentEvent()          {}
func (InputAudioTimeout) agentEvent() {}
func (HistoryUpdated) agentEvent()    {}
func (HistoryAdded) agentEvent()      {}
func (GuardrailTripped) agentEvent()  {}
func (RawModelEvent) agentEvent()     {}
func (ErrorEvent) agentEvent()        {}
