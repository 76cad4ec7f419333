package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hyperjump/vincentbot/internal/keyword"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/internal/pipeline"
	"github.com/hyperjump/vincentbot/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultDocumentsLimit = 50
	defaultPassagesLimit  = 10
	maxListLimit          = 500
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, pipeline.UserMessage(err))
		return
	}
	s.logger.Debug("chat request", zap.Int("query_chars", len(req.Query)))

	answer, err := s.pipeline.Ask(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("chat failed",
			zap.String("kind", string(models.KindOf(err))),
			zap.Bool("timeout", models.IsTimeout(err)),
			zap.Error(err))
		s.respondJSON(w, chatStatus(err), models.ChatResponse{Error: pipeline.UserMessage(err)})
		return
	}
	s.respondJSON(w, http.StatusOK, models.ChatResponse{
		Response:      answer.Text,
		Sources:       answer.Sources,
		DroppedChunks: answer.DroppedChunks,
	})
}

// chatStatus picks the HTTP status for a failed chat. Upstream failures are answered
// with 200 and an error body so chat clients can show the message as a reply.
func chatStatus(err error) int {
	switch models.KindOf(err) {
	case models.KindInvalidArgument:
		return http.StatusBadRequest
	case models.KindIndexUnavailable:
		return http.StatusServiceUnavailable
	case models.KindEmbeddingUnavailable, models.KindGenerationUnavailable, models.KindGenerationMalformed:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.pipeline.CheckIndex(); err != nil {
		status = "degraded"
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]interface{}{
		"embedder": s.pipeline.EmbedderID(),
		"k":        s.pipeline.K(),
	}
	if manifest, ok := s.pipeline.Manifest(); ok {
		resp["index"] = manifest
	}
	if err := s.pipeline.CheckIndex(); err != nil {
		resp["index_error"] = err.Error()
	}

	if s.catalog != nil {
		docCount, err := s.catalog.CountDocuments(ctx)
		if err != nil {
			s.logger.Error("status: count documents failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, pipeline.MsgInternal)
			return
		}
		chunkCount, err := s.catalog.CountChunks(ctx)
		if err != nil {
			s.logger.Error("status: count chunks failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, pipeline.MsgInternal)
			return
		}
		resp["documents"] = docCount
		resp["chunks"] = chunkCount
		if build, err := s.catalog.LatestBuild(ctx); err == nil && build != nil {
			resp["latest_build"] = build
		}
	}
	if s.passages != nil {
		if n, err := s.passages.Count(); err == nil {
			resp["passages"] = n
		}
	}
	if len(s.diskPaths) > 0 {
		if diskBytes, err := storage.DiskUsageBytes(s.diskPaths...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog not enabled")
		return
	}
	offset, ok := intParam(r, "offset", 0)
	if !ok || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, ok := intParam(r, "limit", defaultDocumentsLimit)
	if !ok || limit <= 0 || limit > maxListLimit {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	docs, err := s.catalog.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, pipeline.MsgInternal)
		return
	}
	if docs == nil {
		docs = []storage.DocumentInfo{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "offset": offset, "limit": limit})
}

func (s *Server) handlePassages(w http.ResponseWriter, r *http.Request) {
	if s.passages == nil {
		s.respondError(w, http.StatusNotImplemented, "passage index not enabled")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, ok := intParam(r, "limit", defaultPassagesLimit)
	if !ok || limit <= 0 || limit > maxListLimit {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	fuzziness, ok := intParam(r, "fuzziness", 0)
	if !ok || fuzziness < 0 || fuzziness > 2 {
		s.respondError(w, http.StatusBadRequest, "invalid fuzziness")
		return
	}
	hits, err := s.passages.Search(r.Context(), q, limit, &keyword.SearchOptions{Fuzziness: fuzziness})
	if err != nil {
		s.logger.Error("passage search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, pipeline.MsgInternal)
		return
	}
	if hits == nil {
		hits = []keyword.Passage{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": q, "passages": hits})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("rebuild requested")
	// A client that hangs up does not abandon a half-built index.
	report, err := s.pipeline.Rebuild(context.WithoutCancel(r.Context()))
	if err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		status := http.StatusInternalServerError
		if models.KindOf(err) == models.KindEmbeddingUnavailable {
			status = http.StatusBadGateway
		}
		s.respondError(w, status, pipeline.UserMessage(err))
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
