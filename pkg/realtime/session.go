package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionConfig is the session.update payload.
type SessionConfig struct {
	Modalities         []string             `json:"modalities,omitzero"`
	Instructions       string               `json:"instructions,omitzero"`
	Voice              string               `json:"voice,omitzero"`
	InputAudioFormat   string               `json:"input_audio_format,omitzero"`
	OutputAudioFormat  string               `json:"output_audio_format,omitzero"`
	InputTranscription *TranscriptionConfig `json:"input_audio_transcription,omitzero"`
	TurnDetection      *TurnDetection       `json:"turn_detection,omitzero"`
	Temperature        *float64             `json:"temperature,omitzero"`
}

// TranscriptionConfig enables transcription of user audio.
type TranscriptionConfig struct {
	Model string `json:"model,omitzero"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type,omitzero"`
	Threshold         float64 `json:"threshold,omitzero"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitzero"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitzero"`
}

// Session is one live connection. All Send-side methods are safe for
// concurrent use; Events must be consumed by a single goroutine.
type Session struct {
	conn      *websocket.Conn
	closeCh   chan struct{}
	eventsCh  chan eventOrError
	closeOnce sync.Once

	mu        sync.Mutex
	sessionID string
}

type eventOrError struct {
	event *ServerEvent
	err   error
}

func eventID() string {
	return "evt_" + uuid.NewString()[:12]
}

// UpdateSession pushes new session parameters to the server.
func (s *Session) UpdateSession(cfg *SessionConfig) error {
	return s.send(map[string]any{
		"event_id": eventID(),
		"type":     EventTypeSessionUpdate,
		"session":  cfg,
	})
}

// AppendAudio appends raw PCM16 audio to the input buffer. The payload
// is base64 encoded on the wire.
func (s *Session) AppendAudio(audio []byte) error {
	return s.send(map[string]any{
		"event_id": eventID(),
		"type":     EventTypeInputAudioBufferAppend,
		"audio":    base64.StdEncoding.EncodeToString(audio),
	})
}

// CommitInput commits the input audio buffer, ending the user turn in
// manual mode.
func (s *Session) CommitInput() error {
	return s.send(map[string]any{
		"event_id": eventID(),
		"type":     EventTypeInputAudioBufferCommit,
	})
}

// ClearInput discards buffered input audio.
func (s *Session) ClearInput() error {
	return s.send(map[string]any{
		"event_id": eventID(),
		"type":     EventTypeInputAudioBufferClear,
	})
}

// AddUserText adds a user text message to the conversation.
func (s *Session) AddUserText(text string) error {
	return s.send(map[string]any{
		"event_id": eventID(),
		"type":     EventTypeConversationItemCreate,
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// AddUserImage adds a user message carrying an image plus an optional
// text prompt. imageURL is a data URL or a fetchable https URL.
func (s *Session) AddUserImage(imageURL, prompt string) error {
	content := []map[string]any{{
		"type":      "input_image",
		"image_url": imageURL,
		"detail":    "high",
	}}
	if prompt != "" {
		content = append(content, map[string]any{"type": "input_text", "text": prompt})
	}
	return s.send(map[string]any{
		"event_id": eventID(),
		"type":     EventTypeConversationItemCreate,
		"item": map[string]any{
			"type":    "message",
			"role":    "user",
			"content": content,
		},
	})
}

// CreateResponse asks the model to respond to the conversation so far.
func (s *Session) CreateResponse() error {
	return s.send(map[string]any{
		"event_id": eventID(),
		"type":     EventTypeResponseCreate,
	})
}

// CancelResponse interrupts the in-flight response.
func (s *Session) CancelResponse() error {
	return s.send(map[string]any{
		"event_id": eventID(),
		"type":     EventTypeResponseCancel,
	})
}

// SendRaw sends an arbitrary client event. Use for events without a
// helper, such as forwarded client configuration.
func (s *Session) SendRaw(event map[string]any) error {
	if _, ok := event["event_id"]; !ok {
		event["event_id"] = eventID()
	}
	return s.send(event)
}

// Events iterates server events until the session closes or a read
// error occurs. After an error is yielded, iteration stops.
func (s *Session) Events() iter.Seq2[*ServerEvent, error] {
	return func(yield func(*ServerEvent, error) bool) {
		for {
			select {
			case <-s.closeCh:
				return
			case item, ok := <-s.eventsCh:
				if !ok {
					return
				}
				if !yield(item.event, item.err) {
					return
				}
				if item.err != nil {
					return
				}
			}
		}
	}
}

// SessionID returns the server-assigned id, or empty before
// session.created arrives.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Close tears the connection down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) send(event map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}

func (s *Session) readLoop() {
	defer close(s.eventsCh)

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
			case s.eventsCh <- eventOrError{err: fmt.Errorf("realtime: read: %w", err)}:
			}
			return
		}

		event, err := parseEvent(message)
		if err != nil {
			select {
			case <-s.closeCh:
				return
			case s.eventsCh <- eventOrError{err: err}:
			}
			continue
		}

		if event.Type == EventTypeSessionCreated && event.Session != nil {
			s.mu.Lock()
			s.sessionID = event.Session.ID
			s.mu.Unlock()
		}

		select {
		case <-s.closeCh:
			return
		case s.eventsCh <- eventOrError{event: event}:
		}
	}
}

func parseEvent(message []byte) (*ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, fmt.Errorf("realtime: parse event: %w", err)
	}
	event.Raw = message

	// Audio deltas put base64 audio in the delta field.
	if event.Type == EventTypeResponseAudioDelta && event.Delta != "" {
		if decoded, err := base64.StdEncoding.DecodeString(event.Delta); err == nil {
			event.Audio = decoded
		}
	}
	return &event, nil
}
