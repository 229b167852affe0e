package tutor

import (
	"context"
	"log/slog"
	"strings"
)

// Router selects a specialist for a request. The primary strategy asks
// the classification capability to emit one canonical tag; because that
// output may carry extra prose or a near-miss, layered recovery runs on
// the raw text. Route never fails: any classifier error or unusable
// output lands on HandlerGeneral.
type Router struct {
	classifier Classifier
	logger     *slog.Logger
}

// NewRouter builds a router over the given classifier.
func NewRouter(classifier Classifier, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{classifier: classifier, logger: logger}
}

// Route classifies the routing prompt and recovers a closed-set
// Handler from the raw output.
func (r *Router) Route(ctx context.Context, prompt string) Handler {
	out, err := r.classifier.Classify(ctx, prompt)
	if err != nil {
		r.logger.Warn("classifier failed, falling back to general", "error", err)
		return HandlerGeneral
	}
	h := ExtractHandler(out)
	r.logger.Debug("routed request", "raw", out, "handler", h.Tag())
	return h
}

// canonical tag matching runs in this order; general_agent is checked
// first so an output listing it verbatim is not shadowed by a later
// teacher tag mentioned in passing.
var tagOrder = [...]Handler{
	HandlerGeneral,
	HandlerChinese,
	HandlerPhysics,
	HandlerHistory,
	HandlerMath,
	HandlerArtifact,
}

// dual-keyword recovery: both tokens must appear in the output.
var dualKeywords = []struct {
	first, second string
	handler       Handler
}{
	{"general", "agent", HandlerGeneral},
	{"chinese", "teacher", HandlerChinese},
	{"physics", "teacher", HandlerPhysics},
	{"history", "teacher", HandlerHistory},
	{"math", "teacher", HandlerMath},
}

// subject-keyword recovery in the user's own language.
var subjectKeywords = []struct {
	keywords []string
	handler  Handler
}{
	{[]string{"中文", "语文", "语言"}, HandlerChinese},
	{[]string{"物理", "力学", "牛顿"}, HandlerPhysics},
	{[]string{"历史", "古代", "朝代"}, HandlerHistory},
	{[]string{"数学", "方程", "计算"}, HandlerMath},
}

// ExtractHandler recovers a Handler from raw classifier output. Layers
// are attempted in order: exact canonical tag substring, dual-keyword
// heuristic, subject keywords; anything else defaults to
// HandlerGeneral. Total over arbitrary input.
func ExtractHandler(raw string) Handler {
	out := strings.ToLower(raw)

	for _, h := range tagOrder {
		if strings.Contains(out, h.Tag()) {
			return h
		}
	}
	for _, d := range dualKeywords {
		if strings.Contains(out, d.first) && strings.Contains(out, d.second) {
			return d.handler
		}
	}
	for _, s := range subjectKeywords {
		if containsAny(out, s.keywords) {
			return s.handler
		}
	}
	return HandlerGeneral
}
