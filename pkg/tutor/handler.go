// Package tutor implements the request path of the tutoring gateway:
// task analysis, prompt building, intent routing to a closed set of
// specialist handlers, and the two-stage collaborative pipeline that
// chains artifact analysis with live search.
package tutor

// Handler identifies one specialist from the closed routing set.
// Dispatch switches exhaustively on this type; raw classifier output is
// converted at the boundary and never flows further.
type Handler int

const (
	HandlerGeneral Handler = iota
	HandlerMath
	HandlerChinese
	HandlerPhysics
	HandlerHistory
	HandlerArtifact
)

// Handlers lists every member of the closed set.
var Handlers = [...]Handler{
	HandlerGeneral,
	HandlerMath,
	HandlerChinese,
	HandlerPhysics,
	HandlerHistory,
	HandlerArtifact,
}

// Tag returns the wire tag the classifier is asked to emit.
func (h Handler) Tag() string {
	switch h {
	case HandlerMath:
		return "math_teacher_agent"
	case HandlerChinese:
		return "chinese_teacher_agent"
	case HandlerPhysics:
		return "physics_teacher_agent"
	case HandlerHistory:
		return "history_teacher_agent"
	case HandlerArtifact:
		return "file_analysis_agent"
	default:
		return "general_agent"
	}
}

// DisplayName returns the user-facing name of the specialist.
func (h Handler) DisplayName() string {
	switch h {
	case HandlerMath:
		return "数学教师"
	case HandlerChinese:
		return "中文教师"
	case HandlerPhysics:
		return "物理教师"
	case HandlerHistory:
		return "历史教师"
	case HandlerArtifact:
		return "文件分析助手"
	default:
		return "通用助手"
	}
}

// HandlerFromTag resolves a canonical wire tag. The second return is
// false for anything outside the closed set.
func HandlerFromTag(tag string) (Handler, bool) {
	for _, h := range Handlers {
		if h.Tag() == tag {
			return h, true
		}
	}
	return HandlerGeneral, false
}
