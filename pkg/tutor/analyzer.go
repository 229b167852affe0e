package tutor

import "strings"

// TaskType classifies what capabilities a request needs.
type TaskType int

const (
	// TaskTeaching is a plain tutoring question answered by one
	// specialist.
	TaskTeaching TaskType = iota
	// TaskArtifactAnalysis needs the uploaded artifact's content.
	TaskArtifactAnalysis
	// TaskSearch needs live web results.
	TaskSearch
	// TaskArtifactSearch chains artifact analysis and search through
	// the collaborative pipeline.
	TaskArtifactSearch
)

// Region selects which search surface to prefer.
type Region string

const (
	RegionAuto     Region = "auto"
	RegionDomestic Region = "cn"
	RegionGlobal   Region = "global"
)

// TaskAnalysis is the per-request capability classification. It is
// derived and never persisted.
type TaskAnalysis struct {
	HasArtifact        bool
	WantsSearch        bool
	NeedsCollaboration bool
	Type               TaskType
	Region             Region
}

// Keyword sets driving the heuristic part of the decision table.
var (
	artifactKeywords  = []string{"分析", "文件", "内容", "总结", "解读", "查看", "文档", "代码"}
	freshnessKeywords = []string{"最新", "当前", "现在", "实时", "新闻", "发展", "趋势", "更新"}
	pedagogyKeywords  = []string{"解释", "教学", "学习", "如何", "为什么", "什么是", "怎么"}
)

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Analyze classifies a request. Pure function; the decision table is
// evaluated in order and the first matching rule wins, so an attached
// artifact combined with an explicit search opt-in always demands
// collaboration regardless of keyword content.
func Analyze(hasArtifact, wantsSearch bool, message string, region Region) TaskAnalysis {
	msg := strings.ToLower(message)
	hasArtifactCue := containsAny(msg, artifactKeywords)
	hasFreshness := containsAny(msg, freshnessKeywords)
	hasPedagogy := containsAny(msg, pedagogyKeywords)

	a := TaskAnalysis{
		HasArtifact: hasArtifact,
		WantsSearch: wantsSearch,
		Region:      ResolveRegion(region, message),
	}

	switch {
	case hasArtifact && wantsSearch:
		a.NeedsCollaboration = true
		a.Type = TaskArtifactSearch
	case hasArtifact && hasFreshness:
		a.NeedsCollaboration = true
		a.Type = TaskArtifactSearch
	case hasArtifact:
		a.Type = TaskArtifactAnalysis
	case wantsSearch:
		a.Type = TaskSearch
	case hasPedagogy || !(hasArtifactCue || hasFreshness):
		a.Type = TaskTeaching
	default:
		// Artifact or freshness cues without an attached artifact or
		// an explicit search opt-in still resolve to teaching.
		a.Type = TaskTeaching
	}
	return a
}

// ResolveRegion maps RegionAuto onto a concrete region: messages
// containing CJK text prefer the domestic search surface.
func ResolveRegion(region Region, message string) Region {
	switch region {
	case RegionDomestic, RegionGlobal:
		return region
	}
	for _, r := range message {
		if r >= 0x4e00 && r <= 0x9fff {
			return RegionDomestic
		}
	}
	return RegionGlobal
}
