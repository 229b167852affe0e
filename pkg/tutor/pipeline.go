package tutor

import (
	"context"
	"fmt"
	"log/slog"
)

// Stage produces one intermediate result of a collaborative run.
type Stage func(ctx context.Context) (string, error)

// Pipeline chains artifact analysis and live search for collaborative
// tasks. Stage 2 runs strictly after stage 1 because its query embeds
// stage 1's output. A failing stage contributes an inline error marker
// instead of aborting; the merge always produces a response.
type Pipeline struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewPipeline builds the collaborative pipeline over the search
// capability; the analysis stage is supplied per run.
func NewPipeline(searcher Searcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{searcher: searcher, logger: logger}
}

const mergeTemplate = `## 📄 文件分析结果
%s

---

## 🌐 最新信息补充
%s

---

## 💡 综合回答
基于文件内容和最新信息，为您提供完整的回答。如果您需要更详细的信息或有其他问题，请随时告诉我！`

const searchQueryTemplate = `基于以下文件分析结果：
%s

用户问题：%s

请搜索相关信息并补充回答。`

// Run executes the analysis stage, then the search stage, and merges
// their results. question is the user's original message, embedded into
// the derived search query together with stage 1's result.
func (p *Pipeline) Run(ctx context.Context, question string, analyze Stage, region Region) string {
	r1, err := analyze(ctx)
	stage1Failed := err != nil
	if stage1Failed {
		p.logger.Warn("artifact analysis stage failed", "error", err)
		r1 = fmt.Sprintf("文件分析失败：%v", err)
	}

	query := fmt.Sprintf(searchQueryTemplate, r1, question)
	r2, err := p.searcher.Search(ctx, query, region)
	stage2Failed := err != nil
	if stage2Failed {
		p.logger.Warn("search stage failed", "error", err)
		r2 = fmt.Sprintf("联网搜索失败：%v", err)
	}

	if stage1Failed && stage2Failed {
		// Both stages failed: degrade to the first non-empty result
		// instead of pretending to have merged anything.
		if r1 != "" {
			return r1
		}
		return r2
	}
	return fmt.Sprintf(mergeTemplate, r1, r2)
}
