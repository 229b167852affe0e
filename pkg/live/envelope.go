package live

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope projects an AgentEvent onto its client wire shape. Every
// variant has exactly one projection; an unknown variant is a
// programming error and panics.
func Envelope(ev AgentEvent) map[string]any {
	switch ev := ev.(type) {
	case AgentStart:
		return map[string]any{"type": "agent_start", "agent": ev.Agent}
	case AgentEnd:
		return map[string]any{"type": "agent_end", "agent": ev.Agent}
	case Handoff:
		return map[string]any{"type": "handoff", "from": ev.From, "to": ev.To}
	case ToolStart:
		return map[string]any{"type": "tool_start", "tool": ev.Tool}
	case ToolEnd:
		return map[string]any{
			"type":   "tool_end",
			"tool":   ev.Tool,
			"output": fmt.Sprint(ev.Output),
		}
	case Audio:
		return map[string]any{
			"type":  "audio",
			"audio": base64.StdEncoding.EncodeToString(ev.Data),
		}
	case AudioInterrupted:
		return map[string]any{"type": "audio_interrupted"}
	case AudioEnd:
		return map[string]any{"type": "audio_end"}
	case InputAudioTimeout:
		return map[string]any{"type": "input_audio_timeout_triggered"}
	case HistoryUpdated:
		return map[string]any{"type": "history_updated", "history": ev.History}
	case HistoryAdded:
		// A single unserializable item degrades to null; the envelope
		// itself is still delivered.
		item := ev.Item
		if _, err := json.Marshal(item); err != nil {
			item = nil
		}
		return map[string]any{"type": "history_added", "item": item}
	case GuardrailTripped:
		results := make([]map[string]any, 0, len(ev.Names))
		for _, name := range ev.Names {
			results = append(results, map[string]any{"name": name})
		}
		return map[string]any{"type": "guardrail_tripped", "guardrail_results": results}
	case RawModelEvent:
		return map[string]any{
			"type":            "raw_model_event",
			"raw_model_event": map[string]any{"type": ev.Type},
		}
	case ErrorEvent:
		msg := "Unknown error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return map[string]any{"type": "error", "error": msg}
	default:
		panic(fmt.Sprintf("live: no envelope projection for %T", ev))
	}
}
