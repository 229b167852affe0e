package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/classtide/omnitutor/pkg/tutor"
)

const defaultImagePrompt = "Please describe this image."

// Session is one live client session: an upstream handle, an outbound
// envelope channel, and transient chunked-image buffers. Consumers
// drain Out until Done is closed; Out is never closed.
type Session struct {
	id       string
	upstream Upstream
	out      chan map[string]any
	done     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	images map[string]*imageBuffer
}

type imageBuffer struct {
	text   string
	chunks []string
}

// ID returns the client-chosen session id.
func (s *Session) ID() string { return s.id }

// Out is the outbound envelope stream for the client transport.
func (s *Session) Out() <-chan map[string]any { return s.out }

// Done is closed when the session disconnects.
func (s *Session) Done() <-chan struct{} { return s.done }

// deliver queues an envelope for the client. After disconnect it is a
// no-op.
func (s *Session) deliver(env map[string]any) {
	select {
	case <-s.done:
	case s.out <- env:
	}
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.upstream.Close()
	})
}

// Manager owns the id→session registry. Exactly one live session per
// id; connecting an id that is already live replaces the old session.
type Manager struct {
	dialer Dialer
	chat   ChatBackend
	config *ConfigStore
	logger *slog.Logger

	// MaxChunkBuffers caps concurrent image reassembly buffers per
	// session. 0 means unlimited.
	MaxChunkBuffers int

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerConfig wires the manager's collaborators. Chat and Config may
// be nil; voice routing and startup configuration are then skipped.
type ManagerConfig struct {
	Dialer Dialer
	Chat   ChatBackend
	Config *ConfigStore
	Logger *slog.Logger
}

// NewManager builds a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dialer:   cfg.Dialer,
		chat:     cfg.Chat,
		config:   cfg.Config,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Connect dials the upstream model, registers the session, pushes the
// persisted configuration once, and starts the event pump.
func (m *Manager) Connect(ctx context.Context, id string) (*Session, error) {
	upstream, err := m.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("live: connect %s: %w", id, err)
	}

	s := &Session{
		id:       id,
		upstream: upstream,
		out:      make(chan map[string]any, 256),
		done:     make(chan struct{}),
		images:   make(map[string]*imageBuffer),
	}

	m.mu.Lock()
	if old, ok := m.sessions[id]; ok {
		old.stop()
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if m.config != nil {
		if cfg, err := m.config.Get(ctx); err != nil {
			m.logger.Warn("startup config load failed", "session_id", id, "error", err)
		} else if err := upstream.Forward(configEvent(cfg)); err != nil {
			m.logger.Warn("startup config forward failed", "session_id", id, "error", err)
		}
	}

	go m.pump(s)
	return s, nil
}

// configEvent renders a Config as the synthetic client_config event
// forwarded to the upstream at connect time.
func configEvent(cfg Config) map[string]any {
	event := map[string]any{"type": "client_config"}
	raw, _ := json.Marshal(cfg)
	json.Unmarshal(raw, &event)
	event["type"] = "client_config"
	return event
}

// Disconnect releases the session's upstream and registry entries.
// Idempotent; unknown ids are a no-op. In-flight voice routing for the
// session's synthetic conversation is not cancelled.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		s.stop()
	}
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// pump serializes upstream events to the outbound channel in emission
// order. Recognized user speech is routed through the tutoring path
// before its envelope is delivered.
func (m *Manager) pump(s *Session) {
	for ev, err := range s.upstream.Events() {
		if err != nil {
			m.logger.Error("upstream event stream failed", "session_id", s.id, "error", err)
			s.deliver(Envelope(ErrorEvent{Err: err}))
			return
		}
		if added, ok := ev.(HistoryAdded); ok {
			if text := userText(added.Item); text != "" {
				m.routeVoice(s, text)
			}
		}
		s.deliver(Envelope(ev))
	}
}

// routeVoice answers recognized speech through the chat backend under
// the session's synthetic conversation id.
func (m *Manager) routeVoice(s *Session, text string) {
	if m.chat == nil {
		return
	}
	resp, err := m.chat.Process(context.Background(), tutor.Request{
		Message:        text,
		ConversationID: "voice_" + s.id,
		Region:         tutor.RegionAuto,
	})
	ts := time.Now().Format(time.RFC3339)
	if err != nil {
		m.logger.Error("voice routing failed", "session_id", s.id, "error", err)
		s.deliver(map[string]any{
			"type":       "agent_error",
			"error":      err.Error(),
			"session_id": s.id,
			"timestamp":  ts,
		})
		return
	}
	s.deliver(map[string]any{
		"type":       "agent_response",
		"text":       resp.Text,
		"agent":      resp.HandlerName,
		"session_id": s.id,
		"timestamp":  ts,
	})
}

// userText extracts the text of a user history item, if any.
func userText(item any) string {
	obj, ok := item.(map[string]any)
	if !ok || obj["role"] != "user" {
		return ""
	}
	switch content := obj["content"].(type) {
	case string:
		return content
	case []any:
		for _, part := range content {
			p, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if p["type"] == "text" || p["type"] == "input_text" {
				if text, ok := p["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}

// HandleAudio forwards one binary PCM frame to the upstream.
func (m *Manager) HandleAudio(id string, data []byte) error {
	s, ok := m.session(id)
	if !ok {
		return fmt.Errorf("live: no session %s", id)
	}
	return s.upstream.SendAudio(data)
}

// controlMessage is the decoded shape of a text-frame control message.
type controlMessage struct {
	Type    string `json:"type"`
	ID      any    `json:"id"`
	Text    string `json:"text"`
	Chunk   string `json:"chunk"`
	DataURL string `json:"data_url"`
}

// HandleText dispatches one JSON control message from the client.
// Protocol violations are reported back as error envelopes instead of
// failing the session.
func (m *Manager) HandleText(id string, data []byte) error {
	s, ok := m.session(id)
	if !ok {
		return fmt.Errorf("live: no session %s", id)
	}

	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.deliver(map[string]any{"type": "error", "error": "Invalid control message."})
		return nil
	}

	switch msg.Type {
	case "image":
		if msg.DataURL == "" {
			s.deliver(map[string]any{"type": "error", "error": "No data_url for image message."})
			return nil
		}
		prompt := msg.Text
		if prompt == "" {
			prompt = defaultImagePrompt
		}
		if err := s.upstream.SendImage(msg.DataURL, prompt); err != nil {
			return err
		}
		s.deliver(map[string]any{
			"type": "client_info",
			"info": "image_enqueued",
			"size": len(msg.DataURL),
		})
	case "commit_audio":
		return s.upstream.CommitAudio()
	case "interrupt":
		return s.upstream.Interrupt()
	case "image_start":
		m.imageStart(s, imageID(msg.ID), msg.Text)
	case "image_chunk":
		m.imageChunk(s, imageID(msg.ID), msg.Chunk)
	case "image_end":
		return m.imageEnd(s, imageID(msg.ID))
	case "client_config":
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		return s.upstream.Forward(raw)
	default:
		m.logger.Warn("unknown control message", "session_id", id, "message_type", msg.Type)
	}
	return nil
}

// imageID stringifies the client-chosen image id, which may arrive as
// a string or a number.
func imageID(v any) string {
	if v == nil {
		return ""
	}
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return fmt.Sprint(v)
}

func (m *Manager) imageStart(s *Session, id, text string) {
	if text == "" {
		text = defaultImagePrompt
	}
	s.mu.Lock()
	if m.MaxChunkBuffers > 0 && len(s.images) >= m.MaxChunkBuffers {
		if _, exists := s.images[id]; !exists {
			s.mu.Unlock()
			s.deliver(map[string]any{"type": "error", "error": "Too many image buffers."})
			return
		}
	}
	s.images[id] = &imageBuffer{text: text}
	s.mu.Unlock()

	s.deliver(map[string]any{
		"type": "client_info",
		"info": "image_start_ack",
		"id":   id,
	})
}

func (m *Manager) imageChunk(s *Session, id, chunk string) {
	s.mu.Lock()
	buf, ok := s.images[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	buf.chunks = append(buf.chunks, chunk)
	count := len(buf.chunks)
	s.mu.Unlock()

	if count%10 == 0 {
		s.deliver(map[string]any{
			"type":  "client_info",
			"info":  "image_chunk_ack",
			"id":    id,
			"count": count,
		})
	}
}

func (m *Manager) imageEnd(s *Session, id string) error {
	s.mu.Lock()
	buf, ok := s.images[id]
	if ok {
		delete(s.images, id)
	}
	s.mu.Unlock()

	if !ok {
		s.deliver(map[string]any{"type": "error", "error": "Unknown image id for image_end."})
		return nil
	}
	dataURL := strings.Join(buf.chunks, "")
	if dataURL == "" {
		s.deliver(map[string]any{"type": "error", "error": "Empty image."})
		return nil
	}
	if err := s.upstream.SendImage(dataURL, buf.text); err != nil {
		return err
	}
	s.deliver(map[string]any{
		"type": "client_info",
		"info": "image_enqueued",
		"id":   id,
		"size": len(dataURL),
	})
	return nil
}
