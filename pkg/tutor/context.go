package tutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/classtide/omnitutor/pkg/convo"
)

// ContentSource resolves an artifact id to its extracted text.
// artifact.Registry satisfies it.
type ContentSource interface {
	Content(ctx context.Context, id string) (string, error)
}

// historyWindow bounds how many recent turns are rendered into a
// prompt.
const historyWindow = 8

func roleLabel(r convo.Role) string {
	if r == convo.RoleAssistant {
		return "AI助手"
	}
	return "用户"
}

// BuildPrompt renders the full prompt for a specialist: the most recent
// turns plus the current question. The first turn referencing an
// artifact id inlines its extracted content; later references to the
// same id within one build emit a short reference line only, so large
// payloads enter the prompt at most once. Transcribed turns render a
// voice-upload marker with the transcript. A single plain turn renders
// as the bare question, but a turn referencing an artifact always gets
// the full render so its content reaches the specialist even on the
// conversation's first message.
func BuildPrompt(ctx context.Context, src ContentSource, turns []convo.Turn, question string) string {
	if len(turns) <= 1 && !referencesArtifact(turns) {
		return question
	}
	if n := len(turns); n > historyWindow {
		turns = turns[n-historyWindow:]
	}

	parts := []string{"以下是我们的对话历史："}
	inlined := map[string]bool{}

	for _, t := range turns {
		role := roleLabel(t.Role)
		switch {
		case t.Role == convo.RoleUser && t.Transcribed:
			transcript := t.Transcript
			if transcript == "" {
				transcript = t.Text
			}
			// A deduplicated upload leaves the turn transcribed but
			// without an artifact name.
			marker := "[语音输入已自动转写]"
			if t.ArtifactName != "" {
				marker = fmt.Sprintf("[上传了语音 '%s' 并已自动转写]", t.ArtifactName)
			}
			parts = append(parts,
				fmt.Sprintf("%s: %s", role, marker),
				"转写文本：\n"+transcript,
				fmt.Sprintf("%s: %s", role, t.Text))
		case t.Role == convo.RoleUser && t.ArtifactID != "" && !inlined[t.ArtifactID]:
			content, err := src.Content(ctx, t.ArtifactID)
			if err != nil {
				// Deleted artifact: the turn survives as plain text.
				parts = append(parts, fmt.Sprintf("%s: %s", role, t.Text))
				continue
			}
			inlined[t.ArtifactID] = true
			parts = append(parts,
				fmt.Sprintf("%s: [上传了文件 '%s']", role, t.ArtifactName),
				"文件内容：\n"+content,
				fmt.Sprintf("%s: %s", role, t.Text))
		case t.Role == convo.RoleUser && t.ArtifactID != "":
			parts = append(parts,
				fmt.Sprintf("%s: [继续讨论文件 '%s']", role, t.ArtifactName),
				fmt.Sprintf("%s: %s", role, t.Text))
		default:
			parts = append(parts, fmt.Sprintf("%s: %s", role, t.Text))
		}
	}

	parts = append(parts,
		"\n当前问题："+question,
		"\n请基于以上对话历史回答当前问题。")
	return strings.Join(parts, "\n")
}

func referencesArtifact(turns []convo.Turn) bool {
	for _, t := range turns {
		if t.ArtifactID != "" {
			return true
		}
	}
	return false
}

// BuildRoutingPrompt renders the reduced prompt fed to the intent
// router: artifact turns contribute a name reference only, never
// content, keeping classification cheap.
func BuildRoutingPrompt(turns []convo.Turn, question string) string {
	if len(turns) <= 1 {
		return question
	}
	if n := len(turns); n > historyWindow {
		turns = turns[n-historyWindow:]
	}

	parts := []string{"以下是我们的对话历史："}
	for _, t := range turns {
		role := roleLabel(t.Role)
		if t.Role == convo.RoleUser && t.ArtifactID != "" {
			parts = append(parts, fmt.Sprintf("%s: [上传了文件 '%s']", role, t.ArtifactName))
		}
		parts = append(parts, fmt.Sprintf("%s: %s", role, t.Text))
	}
	parts = append(parts,
		"\n当前问题："+question,
		"\n请基于以上对话历史回答当前问题。")
	return strings.Join(parts, "\n")
}
