package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/pipeline"
)

type ingestTextRequest struct {
	Text       string                 `json:"text"`
	SourceName string                 `json:"source_name"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	s.logger.Debug("ingest text request", zap.String("source_name", req.SourceName))
	result := s.pipeline.IngestText(r.Context(), req.Text, req.SourceName, req.Metadata)
	if !result.Success {
		s.respondJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

// handleIngestFile accepts a multipart upload, stores the file under the
// upload directory, and ingests it. An optional "metadata" form field carries
// a JSON object merged into every chunk.
func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	var metadata map[string]interface{}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			s.respondError(w, http.StatusBadRequest, "metadata must be a JSON object")
			return
		}
	}

	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		s.logger.Error("create upload directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dest := filepath.Join(s.uploadDir, filepath.Base(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		s.logger.Error("save upload failed", zap.String("path", dest), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		s.logger.Error("save upload failed", zap.String("path", dest), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out.Close()

	s.logger.Debug("ingest file request", zap.String("file", header.Filename))
	result := s.pipeline.IngestFile(r.Context(), dest, metadata)
	if !result.Success {
		s.respondJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

type ingestBatchRequest struct {
	Paths    []string               `json:"paths"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "paths is required")
		return
	}
	s.logger.Debug("ingest batch request", zap.Int("files", len(req.Paths)))
	s.respondJSON(w, http.StatusOK, s.pipeline.IngestBatch(r.Context(), req.Paths, req.Metadata))
}

type queryRequest struct {
	Question            string                 `json:"question"`
	TopK                int                    `json:"top_k,omitempty"`
	SimilarityThreshold float64                `json:"similarity_threshold,omitempty"`
	Filter              map[string]interface{} `json:"filter,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	s.logger.Debug("query request", zap.String("question", req.Question), zap.Int("top_k", req.TopK))
	result := s.pipeline.Query(r.Context(), req.Question, pipeline.QueryOptions{
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
		Filter:              req.Filter,
	})
	s.respondJSON(w, http.StatusOK, result)
}

type searchRequest struct {
	Query               string                 `json:"query"`
	TopK                int                    `json:"top_k,omitempty"`
	SimilarityThreshold float64                `json:"similarity_threshold,omitempty"`
	Filter              map[string]interface{} `json:"filter,omitempty"`
	Keywords            []string               `json:"keywords,omitempty"`
	SemanticWeight      float64                `json:"semantic_weight,omitempty"`
	KeywordWeight       float64                `json:"keyword_weight,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	opts := pipeline.QueryOptions{
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
		Filter:              req.Filter,
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("keywords", len(req.Keywords)))
	results := s.pipeline.Search(r.Context(), req.Query, opts)
	if len(req.Keywords) > 0 {
		results = s.pipeline.SearchHybrid(r.Context(), req.Query, req.Keywords, opts)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

type quizRequest struct {
	Topic        string                 `json:"topic"`
	NumQuestions int                    `json:"num_questions,omitempty"`
	Difficulty   string                 `json:"difficulty,omitempty"`
	Filter       map[string]interface{} `json:"filter,omitempty"`
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		s.respondError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = "medium"
	}
	result := s.pipeline.GenerateQuiz(r.Context(), req.Topic, req.NumQuestions, req.Difficulty, req.Filter)
	s.respondJSON(w, http.StatusOK, result)
}

type summaryRequest struct {
	Query     string                 `json:"query"`
	MaxLength int                    `json:"max_length,omitempty"`
	Filter    map[string]interface{} `json:"filter,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	result := s.pipeline.Summarize(r.Context(), req.Query, req.MaxLength, req.Filter)
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	var filter map[string]interface{}
	if source := r.URL.Query().Get("source"); source != "" {
		filter = map[string]interface{}{"source": source}
	}
	s.respondJSON(w, http.StatusOK, s.pipeline.ListDocuments(r.Context(), filter, limit))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc := s.pipeline.GetDocument(r.Context(), id)
	if doc == nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	result := s.pipeline.DeleteDocument(r.Context(), id)
	if !result.Success {
		s.respondJSON(w, http.StatusNotFound, result)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSimilarDocuments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	topK := queryInt(r, "top_k", 5)
	result := s.pipeline.SimilarDocuments(r.Context(), id, topK)
	if !result.Success {
		s.respondJSON(w, http.StatusNotFound, result)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	sources, err := s.pipeline.ListSources(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete source request", zap.String("id", id))
	result := s.pipeline.DeleteSource(r.Context(), id)
	if !result.Success {
		s.respondJSON(w, http.StatusInternalServerError, result)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.pipeline.GetSystemInfo(r.Context()))
}

type transferRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	result := s.pipeline.ExportKnowledgeBase(r.Context(), req.Path)
	if !result.Success {
		s.respondJSON(w, http.StatusInternalServerError, result)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	result := s.pipeline.ImportKnowledgeBase(r.Context(), req.Path)
	if !result.Success {
		s.respondJSON(w, http.StatusInternalServerError, result)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("clear request")
	result := s.pipeline.ClearAll(r.Context())
	if !result.Success {
		s.respondJSON(w, http.StatusInternalServerError, result)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
