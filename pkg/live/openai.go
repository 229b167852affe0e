package live

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"github.com/classtide/omnitutor/pkg/realtime"
)

// OpenAIDialer dials voice sessions against the OpenAI realtime API.
type OpenAIDialer struct {
	client *realtime.Client
}

// NewOpenAIDialer wraps a realtime client as a session Dialer.
func NewOpenAIDialer(client *realtime.Client) *OpenAIDialer {
	return &OpenAIDialer{client: client}
}

var _ Dialer = (*OpenAIDialer)(nil)

// agentLabel names the voice handler in agent_start/agent_end
// envelopes.
const agentLabel = "语音助手"

func (d *OpenAIDialer) Dial(ctx context.Context) (Upstream, error) {
	sess, err := d.client.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &openAIUpstream{sess: sess}, nil
}

type openAIUpstream struct {
	sess *realtime.Session
}

var _ Upstream = (*openAIUpstream)(nil)

func (u *openAIUpstream) SendAudio(data []byte) error { return u.sess.AppendAudio(data) }
func (u *openAIUpstream) CommitAudio() error          { return u.sess.CommitInput() }
func (u *openAIUpstream) Interrupt() error            { return u.sess.CancelResponse() }

func (u *openAIUpstream) SendImage(imageURL, prompt string) error {
	return u.sess.AddUserImage(imageURL, prompt)
}

func (u *openAIUpstream) Configure(cfg Config) error {
	return u.sess.UpdateSession(&realtime.SessionConfig{
		Modalities:         []string{"text", "audio"},
		Instructions:       cfg.Instructions,
		Voice:              strings.ToLower(cfg.Voice),
		InputAudioFormat:   "pcm16",
		OutputAudioFormat:  "pcm16",
		InputTranscription: &realtime.TranscriptionConfig{Model: "whisper-1"},
		TurnDetection: &realtime.TurnDetection{
			Type:              "server_vad",
			Threshold:         cfg.Threshold,
			PrefixPaddingMs:   cfg.PrefixPaddingMs,
			SilenceDurationMs: cfg.SilenceDurationMs,
		},
		Temperature: &cfg.Temperature,
	})
}

// Forward passes a client event to the model. client_config events are
// flat config objects and become a session.update; anything else goes
// out verbatim.
func (u *openAIUpstream) Forward(event map[string]any) error {
	if event["type"] == "client_config" {
		cfg := DefaultConfig()
		if raw, err := json.Marshal(event); err == nil {
			json.Unmarshal(raw, &cfg)
		}
		return u.Configure(cfg)
	}
	return u.sess.SendRaw(event)
}

func (u *openAIUpstream) Close() error { return u.sess.Close() }

// Events maps wire events onto the AgentEvent set. Events with no
// richer mapping surface as RawModelEvent.
func (u *openAIUpstream) Events() iter.Seq2[AgentEvent, error] {
	return func(yield func(AgentEvent, error) bool) {
		for ev, err := range u.sess.Events() {
			if err != nil {
				yield(nil, err)
				return
			}
			mapped := mapServerEvent(ev)
			if mapped == nil {
				continue
			}
			if !yield(mapped, nil) {
				return
			}
		}
	}
}

func mapServerEvent(ev *realtime.ServerEvent) AgentEvent {
	switch ev.Type {
	case realtime.EventTypeResponseCreated:
		return AgentStart{Agent: agentLabel}
	case realtime.EventTypeResponseDone:
		return AgentEnd{Agent: agentLabel}
	case realtime.EventTypeResponseAudioDelta:
		return Audio{Data: ev.Audio}
	case realtime.EventTypeResponseAudioDone:
		return AudioEnd{}
	case realtime.EventTypeInputAudioBufferSpeechStarted:
		return AudioInterrupted{}
	case realtime.EventTypeInputAudioTimeout:
		return InputAudioTimeout{}
	case realtime.EventTypeInputTranscriptDone:
		// Recognized user speech joins the history as a user item; the
		// manager routes its text through the tutoring path.
		return HistoryAdded{Item: map[string]any{
			"item_id": ev.ItemID,
			"role":    "user",
			"content": []any{
				map[string]any{"type": "text", "text": ev.Transcript},
			},
		}}
	case realtime.EventTypeError:
		var err error
		if ev.Err != nil {
			err = ev.Err
		}
		return ErrorEvent{Err: err}
	case realtime.EventTypeSessionCreated, realtime.EventTypeSessionUpdated:
		return nil
	default:
		return RawModelEvent{Type: ev.Type}
	}
}
