package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/classtide/omnitutor/pkg/artifact"
	"github.com/classtide/omnitutor/pkg/convo"
	"github.com/classtide/omnitutor/pkg/live"
	"github.com/classtide/omnitutor/pkg/registry"
	"github.com/classtide/omnitutor/pkg/tutor"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	UseWebSearch   bool   `json:"use_web_search"`
	Region         string `json:"region"`
	FileID         string `json:"file_id"`
}

type chatResponse struct {
	Response       string `json:"response"`
	AgentName      string `json:"agent_name"`
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}

	resp, err := s.tutor.Process(r.Context(), tutor.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		UseWebSearch:   req.UseWebSearch,
		Region:         tutor.Region(req.Region),
		ArtifactID:     req.FileID,
	})
	if errors.Is(err, tutor.ErrEmptyMessage) {
		s.writeError(w, http.StatusBadRequest, "消息不能为空")
		return
	}
	if err != nil {
		s.logger.Error("chat request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, chatResponse{
		Response:       resp.Text,
		AgentName:      resp.HandlerName,
		AgentID:        resp.Handler.Tag(),
		ConversationID: resp.ConversationID,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "没有选择文件")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil || header.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "没有选择文件")
		return
	}
	defer file.Close()

	if !artifact.Allowed(header.Filename) {
		s.writeError(w, http.StatusBadRequest, "不支持的文件类型")
		return
	}

	ref, err := s.artifacts.Add(r.Context(), header.Filename, file)
	if err != nil {
		s.logger.Error("upload failed", "file", header.Filename, "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("文件上传失败：%v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"file_id":  ref.ID,
		"filename": ref.Name,
		"message":  "文件上传成功",
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	refs, err := s.artifacts.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if refs == nil {
		refs = []artifact.Ref{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"files": refs})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	err := s.artifacts.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, artifact.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "文件不存在")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "文件删除成功"})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.convos.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summaries == nil {
		summaries = []convo.Summary{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.convos.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, convo.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "对话不存在")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": rec.Turns})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	err := s.convos.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, convo.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "对话不存在")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "对话删除成功"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.convos.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.artifacts.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "所有数据已清除"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.config.Get(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var patch live.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	if _, err := s.config.Patch(r.Context(), patch); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type mcpPayload struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Enabled     *bool           `json:"enabled"`
	Config      json.RawMessage `json:"config"`
}

func (p *mcpPayload) enabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// configMap decodes the payload's config field, which must be a JSON
// object when present.
func (p *mcpPayload) configMap() (map[string]any, error) {
	if len(p.Config) == 0 || string(p.Config) == "null" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(p.Config, &m); err != nil {
		return nil, errors.New("配置需为JSON对象")
	}
	return m, nil
}

// writeMCPError maps registry errors onto the API's status codes and
// user-facing reasons.
func (s *Server) writeMCPError(w http.ResponseWriter, err error) {
	var probeErr *registry.ProbeError
	switch {
	case errors.Is(err, registry.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "MCP 不存在")
	case errors.Is(err, registry.ErrEmptyName):
		s.writeError(w, http.StatusBadRequest, "名称不能为空")
	case errors.As(err, &probeErr):
		s.writeError(w, http.StatusBadRequest, "校验失败："+probeErr.Reason)
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListMCPs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.mcps.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []registry.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"mcps": entries})
}

func (s *Server) handleCreateMCP(w http.ResponseWriter, r *http.Request) {
	var payload mcpPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	config, err := payload.configMap()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "校验失败："+err.Error())
		return
	}
	entry, err := s.mcps.Create(r.Context(), payload.Name, payload.Description, payload.enabled(), config)
	if err != nil {
		s.writeMCPError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "创建成功", "mcp": entry})
}

func (s *Server) handleUpdateMCP(w http.ResponseWriter, r *http.Request) {
	var payload mcpPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	config, err := payload.configMap()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "校验失败："+err.Error())
		return
	}
	entry, err := s.mcps.Update(r.Context(), r.PathValue("id"), payload.Name, payload.Description, payload.enabled(), config)
	if err != nil {
		s.writeMCPError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "更新成功", "mcp": entry})
}

func (s *Server) handleEnableMCP(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	enabled := payload.Enabled == nil || *payload.Enabled
	if _, err := s.mcps.SetEnabled(r.Context(), r.PathValue("id"), enabled); err != nil {
		s.writeMCPError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "状态已更新"})
}

func (s *Server) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	if err := s.mcps.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeMCPError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "删除成功"})
}
