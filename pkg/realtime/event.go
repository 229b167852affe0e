package realtime

// Client event types.
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeInputAudioBufferCommit = "input_audio_buffer.commit"
	EventTypeInputAudioBufferClear  = "input_audio_buffer.clear"
	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeResponseCreate         = "response.create"
	EventTypeResponseCancel         = "response.cancel"
)

// Server event types.
const (
	EventTypeError          = "error"
	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeConversationItemCreated = "conversation.item.created"
	EventTypeInputTranscriptDone     = "conversation.item.input_audio_transcription.completed"

	EventTypeInputAudioBufferCommitted     = "input_audio_buffer.committed"
	EventTypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"
	EventTypeInputAudioTimeout             = "input_audio_buffer.timeout_triggered"

	EventTypeResponseCreated         = "response.created"
	EventTypeResponseDone            = "response.done"
	EventTypeResponseOutputItemAdded = "response.output_item.added"
	EventTypeResponseOutputItemDone  = "response.output_item.done"

	EventTypeResponseTextDelta = "response.text.delta"
	EventTypeResponseTextDone  = "response.text.done"

	EventTypeResponseAudioDelta = "response.audio.delta"
	EventTypeResponseAudioDone  = "response.audio.done"

	EventTypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone  = "response.audio_transcript.done"

	EventTypeResponseFunctionCallArgumentsDone = "response.function_call_arguments.done"

	EventTypeRateLimitsUpdated = "rate_limits.updated"
)

// ServerEvent is one event read off the wire. Only the fields relevant
// to the event's type are populated; Raw always holds the original
// message.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitzero"`

	Session *SessionResource `json:"session,omitzero"`
	Item    *Item            `json:"item,omitzero"`

	ItemID       string `json:"item_id,omitzero"`
	AudioStartMs int    `json:"audio_start_ms,omitzero"`
	AudioEndMs   int    `json:"audio_end_ms,omitzero"`

	Transcript string `json:"transcript,omitzero"`

	Response *Response `json:"response,omitzero"`

	// Delta carries incremental text, or base64 audio for
	// response.audio.delta events.
	Delta string `json:"delta,omitzero"`

	// Audio is the decoded payload of an audio delta.
	Audio []byte `json:"-"`

	CallID    string `json:"call_id,omitzero"`
	Name      string `json:"name,omitzero"`
	Arguments string `json:"arguments,omitzero"`

	// Err carries the payload of an error event.
	Err *Error `json:"error,omitzero"`

	Raw []byte `json:"-"`
}

// SessionResource is the server's view of the session.
type SessionResource struct {
	ID           string  `json:"id,omitzero"`
	Model        string  `json:"model,omitzero"`
	Voice        string  `json:"voice,omitzero"`
	Instructions string  `json:"instructions,omitzero"`
	Temperature  float64 `json:"temperature,omitzero"`
}

// Item is one conversation item.
type Item struct {
	ID      string        `json:"id,omitzero"`
	Type    string        `json:"type,omitzero"`
	Status  string        `json:"status,omitzero"`
	Role    string        `json:"role,omitzero"`
	Content []ContentPart `json:"content,omitzero"`
}

// ContentPart is one part of an item's content.
type ContentPart struct {
	Type       string `json:"type,omitzero"`
	Text       string `json:"text,omitzero"`
	Audio      string `json:"audio,omitzero"`
	Transcript string `json:"transcript,omitzero"`
	ImageURL   string `json:"image_url,omitzero"`
}

// Response is the model's response resource.
type Response struct {
	ID     string `json:"id,omitzero"`
	Status string `json:"status,omitzero"`
	Output []Item `json:"output,omitzero"`
}
