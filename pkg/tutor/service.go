package tutor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classtide/omnitutor/pkg/artifact"
	"github.com/classtide/omnitutor/pkg/convo"
)

// ErrEmptyMessage rejects a chat request with neither a message nor an
// audio artifact to transcribe.
var ErrEmptyMessage = errors.New("tutor: 消息不能为空")

// Transcriber converts recorded speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Request is one chat invocation.
type Request struct {
	Message        string
	ConversationID string
	UseWebSearch   bool
	Region         Region
	ArtifactID     string
}

// Response carries the answer plus which specialist produced it.
type Response struct {
	Text           string
	Handler        Handler
	HandlerName    string
	ConversationID string
}

// defaultAudioQuestion substitutes for an empty message when the
// request attaches an audio recording.
const defaultAudioQuestion = "请基于该语音内容给出完整摘要、要点列表与关键信息。"

// Service orchestrates the request path: transcription, history
// bookkeeping, task analysis, routing, and dispatch to either a single
// specialist or the collaborative pipeline.
type Service struct {
	convos      *convo.Store
	artifacts   *artifact.Registry
	router      *Router
	pipeline    *Pipeline
	responder   Responder
	analyzer    ArtifactAnalyzer
	files       FileAnalyzer
	searcher    Searcher
	transcriber Transcriber
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceConfig wires the service's collaborators. Transcriber may be
// nil; audio requests then fall back to the default question. Files may
// be nil; PDF artifacts then degrade to the registry's extraction
// advisory.
type ServiceConfig struct {
	Conversations *convo.Store
	Artifacts     *artifact.Registry
	Router        *Router
	Pipeline      *Pipeline
	Responder     Responder
	Analyzer      ArtifactAnalyzer
	Files         FileAnalyzer
	Searcher      Searcher
	Transcriber   Transcriber
	Logger        *slog.Logger
}

// NewService builds the request-path orchestrator.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		convos:      cfg.Conversations,
		artifacts:   cfg.Artifacts,
		router:      cfg.Router,
		pipeline:    cfg.Pipeline,
		responder:   cfg.Responder,
		analyzer:    cfg.Analyzer,
		files:       cfg.Files,
		searcher:    cfg.Searcher,
		transcriber: cfg.Transcriber,
		logger:      logger,
		now:         time.Now,
	}
}

// Process handles one chat request end to end and returns the
// specialist's answer. Capability failures degrade to inline error text
// in the response; only validation and persistence problems surface as
// errors.
func (s *Service) Process(ctx context.Context, req Request) (*Response, error) {
	msg := strings.TrimSpace(req.Message)
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	var ref *artifact.Ref
	if req.ArtifactID != "" {
		r, err := s.artifacts.Get(ctx, req.ArtifactID)
		switch {
		case errors.Is(err, artifact.ErrNotFound):
			s.logger.Warn("chat request references unknown artifact", "artifact_id", req.ArtifactID)
		case err != nil:
			return nil, err
		default:
			ref = r
		}
	}

	// Audio artifacts are transcribed before routing so the specialist
	// sees text; an empty message gets the default summary question.
	transcribed := false
	if ref != nil && ref.IsAudio() {
		if msg == "" {
			msg = defaultAudioQuestion
		}
		if text, err := s.transcribe(ctx, ref); err != nil {
			s.logger.Warn("audio transcription failed", "artifact_id", ref.ID, "error", err)
		} else if text != "" {
			msg = text
			transcribed = true
		}
	}
	if msg == "" {
		return nil, ErrEmptyMessage
	}

	userTurn := convo.Turn{Timestamp: s.now(), Role: convo.RoleUser, Text: msg}
	if ref != nil {
		// Attach the artifact to the turn only the first time this
		// conversation references it.
		prev, err := s.convos.Get(ctx, convID)
		if err != nil && !errors.Is(err, convo.ErrNotFound) {
			return nil, err
		}
		if prev == nil || !prev.HasArtifact(ref.ID) {
			userTurn.ArtifactID = ref.ID
			userTurn.ArtifactName = ref.Name
		}
	}
	if transcribed {
		userTurn.Transcribed = true
		userTurn.Transcript = msg
	}
	rec, err := s.convos.Append(ctx, convID, userTurn)
	if err != nil {
		return nil, err
	}

	analysis := Analyze(ref != nil, req.UseWebSearch, msg, req.Region)
	s.logger.Info("task analyzed",
		"conversation_id", convID,
		"type", analysis.Type,
		"collaboration", analysis.NeedsCollaboration,
		"region", analysis.Region)

	var (
		text    string
		handler Handler
	)
	switch analysis.Type {
	case TaskArtifactSearch:
		handler = HandlerArtifact
		text = s.pipeline.Run(ctx, msg, s.artifactStage(ref, rec.Turns, msg), analysis.Region)
	case TaskArtifactAnalysis:
		handler = HandlerArtifact
		r, err := s.artifactStage(ref, rec.Turns, msg)(ctx)
		text = s.degrade(r, err, "文件分析失败：%v")
	case TaskSearch:
		handler = HandlerGeneral
		r, err := s.searcher.Search(ctx, msg, analysis.Region)
		text = s.degrade(r, err, "联网搜索失败：%v")
	case TaskTeaching:
		handler = s.router.Route(ctx, BuildRoutingPrompt(rec.Turns, msg))
		prompt := BuildPrompt(ctx, s.artifacts, rec.Turns, msg)
		r, err := s.responder.Respond(ctx, handler, prompt)
		text = s.degrade(r, err, "处理问题时出现错误：%v")
	default:
		return nil, fmt.Errorf("tutor: unhandled task type %d", analysis.Type)
	}

	if _, err := s.convos.Append(ctx, convID, convo.Turn{
		Timestamp:   s.now(),
		Role:        convo.RoleAssistant,
		Text:        text,
		HandlerID:   handler.Tag(),
		HandlerName: handler.DisplayName(),
	}); err != nil {
		return nil, err
	}

	return &Response{
		Text:           text,
		Handler:        handler,
		HandlerName:    handler.DisplayName(),
		ConversationID: convID,
	}, nil
}

// artifactStage returns the analysis step for the request's artifact.
// PDF payloads go to the file analyzer by reference because their text
// cannot be inlined; everything else renders the history prompt with
// the extracted content for the artifact specialist.
func (s *Service) artifactStage(ref *artifact.Ref, turns []convo.Turn, question string) Stage {
	return func(ctx context.Context) (string, error) {
		if ref != nil && ref.IsPDF() && s.files != nil {
			_, rc, err := s.artifacts.Open(ctx, ref.ID)
			if err != nil {
				return "", err
			}
			defer rc.Close()
			return s.files.AnalyzeFile(ctx, ref.Name, rc, question)
		}
		return s.analyzer.AnalyzeArtifact(ctx, BuildPrompt(ctx, s.artifacts, turns, question))
	}
}

func (s *Service) transcribe(ctx context.Context, ref *artifact.Ref) (string, error) {
	if s.transcriber == nil {
		return "", nil
	}
	_, rc, err := s.artifacts.Open(ctx, ref.ID)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return s.transcriber.Transcribe(ctx, ref.Name, rc)
}

// degrade converts a capability failure into inline error text so a
// single failing specialist never hard-fails the request.
func (s *Service) degrade(result string, err error, format string) string {
	if err != nil {
		s.logger.Warn("capability failed", "error", err)
		return fmt.Sprintf(format, err)
	}
	return result
}
