package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
)

// defaultSearchModels is the ordered fallback chain for search-capable
// generation. Exhausting it triggers one final tool-free attempt before
// the error surfaces.
var defaultSearchModels = []string{"gpt-5", "gpt-4.1", "gpt-4.1-mini", "gpt-4o"}

const (
	defaultRespondModel  = "gpt-4o"
	defaultClassifyModel = "gpt-4o-mini"
)

// OpenAI implements the Responder, ArtifactAnalyzer, Searcher, and
// Classifier capabilities on the OpenAI API.
type OpenAI struct {
	client        *openai.Client
	respondModel  string
	classifyModel string
	searchModels  []string
	logger        *slog.Logger
}

// OpenAIConfig configures the OpenAI capability backend. Zero-value
// model fields pick the defaults.
type OpenAIConfig struct {
	Client        *openai.Client
	RespondModel  string
	ClassifyModel string
	SearchModels  []string
	Logger        *slog.Logger
}

// NewOpenAI builds the backend.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	o := &OpenAI{
		client:        cfg.Client,
		respondModel:  cfg.RespondModel,
		classifyModel: cfg.ClassifyModel,
		searchModels:  cfg.SearchModels,
		logger:        cfg.Logger,
	}
	if o.respondModel == "" {
		o.respondModel = defaultRespondModel
	}
	if o.classifyModel == "" {
		o.classifyModel = defaultClassifyModel
	}
	if len(o.searchModels) == 0 {
		o.searchModels = defaultSearchModels
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

var (
	_ Responder        = (*OpenAI)(nil)
	_ ArtifactAnalyzer = (*OpenAI)(nil)
	_ FileAnalyzer     = (*OpenAI)(nil)
	_ Searcher         = (*OpenAI)(nil)
	_ Classifier       = (*OpenAI)(nil)
)

func handlerInstructions(h Handler) string {
	switch h {
	case HandlerMath:
		return "你是一位专业的数学教师，擅长代数、几何、微积分与统计。请用中文回答，给出清晰的推导步骤和具体例子。"
	case HandlerChinese:
		return "你是一位中文教师，擅长文学、诗歌、成语与语法。请用中文回答，语言生动准确，适合教学使用。"
	case HandlerPhysics:
		return "你是一位物理教师，擅长力学、运动定律与能量。请用中文回答，结合公式与直观解释。"
	case HandlerHistory:
		return "你是一位历史教师，擅长世界历史与中国历史。请用中文回答，注重史实与时代背景。"
	case HandlerArtifact:
		return "你是一个专业的文件分析专家，负责分析和解读用户上传的文件内容。请用中文回答，给出清晰的小标题与要点列表。"
	default:
		return "你是一个全能的AI教师，能够教授各种学科和知识领域。请用中文回答，语言要生动有趣，适合教学使用。"
	}
}

// Respond answers a prompt as the given specialist.
func (o *OpenAI) Respond(ctx context.Context, handler Handler, prompt string) (string, error) {
	return o.complete(ctx, o.respondModel, handlerInstructions(handler), prompt, 2000)
}

// AnalyzeArtifact answers a prompt with artifact content already
// inlined, using the file-analysis instructions.
func (o *OpenAI) AnalyzeArtifact(ctx context.Context, prompt string) (string, error) {
	return o.complete(ctx, o.respondModel, handlerInstructions(HandlerArtifact), prompt, 2000)
}

func (o *OpenAI) complete(ctx context.Context, model, instructions, prompt string, maxTokens int64) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions),
			openai.UserMessage(prompt),
		},
		Temperature:         param.NewOpt(0.7),
		MaxCompletionTokens: param.NewOpt(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("tutor: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("tutor: openai completion: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

const filePromptTemplate = `请分析这个PDF文件：%s

用户问题：%s

请用中文回答，语言要清晰准确，并给出结构化要点。`

// AnalyzeFile uploads the payload through the Files API and answers the
// question with the document attached by file id, so the model reads
// the original bytes instead of an extracted text approximation.
func (o *OpenAI) AnalyzeFile(ctx context.Context, filename string, payload io.Reader, question string) (string, error) {
	file, err := o.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(payload, filename, "application/pdf"),
		Purpose: openai.FilePurposeUserData,
	})
	if err != nil {
		return "", fmt.Errorf("tutor: upload %s: %w", filename, err)
	}
	o.logger.Debug("document uploaded for analysis", "file_id", file.ID, "name", filename)

	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: o.respondModel,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{{
				OfMessage: &responses.EasyInputMessageParam{
					Role: responses.EasyInputMessageRoleUser,
					Content: responses.EasyInputMessageContentUnionParam{
						OfInputItemContentList: responses.ResponseInputMessageContentListParam{
							{OfInputFile: &responses.ResponseInputFileParam{FileID: param.NewOpt(file.ID)}},
							{OfInputText: &responses.ResponseInputTextParam{
								Text: fmt.Sprintf(filePromptTemplate, filename, question),
							}},
						},
					},
				},
			}},
		},
		Temperature:     param.NewOpt(0.7),
		MaxOutputTokens: param.NewOpt(int64(2000)),
	})
	if err != nil {
		return "", fmt.Errorf("tutor: analyze %s: %w", filename, err)
	}
	return resp.OutputText(), nil
}

// Search runs the query through the search-capable model chain with the
// web_search_preview tool, falling back model by model; after the chain
// is exhausted it makes one last attempt without the tool.
func (o *OpenAI) Search(ctx context.Context, query string, region Region) (string, error) {
	var lastErr error
	for _, model := range o.searchModels {
		resp, err := o.client.Responses.New(ctx, o.searchParams(model, query, region, true))
		if err != nil {
			o.logger.Warn("search model failed, trying next", "model", model, "error", err)
			lastErr = err
			continue
		}
		if text := resp.OutputText(); text != "" {
			return text, nil
		}
	}

	last := o.searchModels[len(o.searchModels)-1]
	resp, err := o.client.Responses.New(ctx, o.searchParams(last, query, region, false))
	if err != nil {
		if lastErr != nil {
			return "", fmt.Errorf("tutor: search: %w", lastErr)
		}
		return "", fmt.Errorf("tutor: search: %w", err)
	}
	return resp.OutputText(), nil
}

func (o *OpenAI) searchParams(model, query string, region Region, withSearch bool) responses.ResponseNewParams {
	inst := "You are a helpful research assistant. Search the web and summarize answers in Chinese with citations to sources (site names)."
	if region == RegionDomestic {
		inst += " Prefer Chinese sources."
	}
	p := responses.ResponseNewParams{
		Model:           model,
		Instructions:    param.NewOpt(inst),
		Input:           responses.ResponseNewParamsInputUnion{OfString: param.NewOpt(query)},
		Temperature:     param.NewOpt(0.7),
		MaxOutputTokens: param.NewOpt(int64(1500)),
	}
	if withSearch {
		p.Tools = []responses.ToolUnionParam{{
			OfWebSearchPreview: &responses.WebSearchToolParam{
				Type: responses.WebSearchToolTypeWebSearchPreview,
			},
		}}
	}
	return p
}

const classifierInstructions = `你是一个智能体选择器。根据用户问题和对话历史选择最合适的智能体：

- math_teacher_agent: 数学、方程、计算、代数、几何、函数等
- chinese_teacher_agent: 中文、文学、诗歌、成语、语法等
- physics_teacher_agent: 物理、力学、运动定律、能量等
- history_teacher_agent: 历史、历史事件、古代文明等
- file_analysis_agent: 文件分析、文件内容相关问题、用户明确要求分析文件
- general_agent: 对话历史、系统功能、综合问题、其他不符合上述分类的问题

语音转写后的文本内容按文本内容判断，不按文件类型判断。
只返回智能体名称，不要其他任何文字。`

type agentChoice struct {
	Agent string `json:"agent"`
}

// Classify asks the model to pick one canonical tag, constrained by a
// JSON schema. The returned string is still treated as untrusted by the
// Router.
func (o *OpenAI) Classify(ctx context.Context, prompt string) (string, error) {
	schema, err := jsonschema.For[agentChoice](&jsonschema.ForOptions{})
	if err != nil {
		return "", fmt.Errorf("tutor: classify schema: %w", err)
	}
	// OpenAI strict mode requires additionalProperties: false.
	schema.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.classifyModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifierInstructions),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "select_agent",
					Description: param.NewOpt("选择最合适的智能体"),
					Schema:      schema,
					Strict:      param.NewOpt(true),
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("tutor: classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("tutor: classify: no choices")
	}

	var choice agentChoice
	if err := unmarshalRepaired([]byte(resp.Choices[0].Message.Content), &choice); err != nil {
		return "", fmt.Errorf("tutor: classify decode: %w", err)
	}
	return choice.Agent, nil
}

// unmarshalRepaired unmarshals JSON, attempting a jsonrepair pass when
// the payload is syntactically broken.
func unmarshalRepaired(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
