package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quiverdb/quiver"
	"github.com/quiverdb/quiver/collection"
	"github.com/quiverdb/quiver/embedding"
	"github.com/quiverdb/quiver/model"
)

type createLibraryRequest struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Metadata model.Metadata `json:"metadata,omitempty"`
}

type createDocumentRequest struct {
	ID        string         `json:"id,omitempty"`
	LibraryID string         `json:"library_id"`
	Name      string         `json:"name"`
	Metadata  model.Metadata `json:"metadata,omitempty"`
}

type createChunkRequest struct {
	ID         string         `json:"id,omitempty"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   model.Metadata `json:"metadata,omitempty"`
}

type updateChunkRequest struct {
	Text       *string        `json:"text,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   model.Metadata `json:"metadata,omitempty"`
	DocumentID *string        `json:"document_id,omitempty"`
}

type queryRequest struct {
	Collection string         `json:"collection"`
	IndexType  string         `json:"index_type"`
	Text       string         `json:"text"`
	Limit      int            `json:"limit"`
	Filter     model.Metadata `json:"filter,omitempty"`
}

type queryResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float32        `json:"score"`
	Metadata model.Metadata `json:"metadata,omitempty"`
}

type queryResponse struct {
	Results []queryResult `json:"results"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "quiver vector database"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Reset(); err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleCreateLibrary(w http.ResponseWriter, r *http.Request) {
	var req createLibraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lib, err := s.db.CreateLibrary(model.Library{ID: req.ID, Name: req.Name, Metadata: req.Metadata})
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, lib)
}

func (s *Server) handleListLibraries(w http.ResponseWriter, _ *http.Request) {
	libs, err := s.db.ListLibraries()
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, libs)
}

func (s *Server) handleGetLibrary(w http.ResponseWriter, r *http.Request) {
	lib, err := s.db.GetLibrary(chi.URLParam(r, "id"))
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, lib)
}

func (s *Server) handleUpdateLibrary(w http.ResponseWriter, r *http.Request) {
	var upd model.LibraryUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lib, err := s.db.UpdateLibrary(chi.URLParam(r, "id"), upd)
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, lib)
}

func (s *Server) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteLibrary(chi.URLParam(r, "id")); err != nil {
		s.respondDBError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := s.db.CreateDocument(model.Document{
		ID:        req.ID,
		LibraryID: req.LibraryID,
		Name:      req.Name,
		Metadata:  req.Metadata,
	})
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, _ *http.Request) {
	docs, err := s.db.ListDocuments()
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.db.GetDocument(chi.URLParam(r, "id"))
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var upd model.DocumentUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := s.db.UpdateDocument(chi.URLParam(r, "id"), upd)
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteDocument(chi.URLParam(r, "id")); err != nil {
		s.respondDBError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateChunk(w http.ResponseWriter, r *http.Request) {
	var req createChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	// Embed before entering the collection; the lock is never held across
	// provider I/O.
	vec := req.Embedding
	if len(vec) == 0 {
		var err error
		vec, err = s.embedder.Embed(r.Context(), req.Text)
		if err != nil {
			s.logger.Error("embedding failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "embedding provider failure")
			return
		}
	}

	chunk, err := s.db.CreateChunk(model.Chunk{
		ID:         req.ID,
		DocumentID: req.DocumentID,
		Text:       req.Text,
		Embedding:  vec,
		Metadata:   req.Metadata,
	})
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, chunk)
}

func (s *Server) handleListChunks(w http.ResponseWriter, _ *http.Request) {
	chunks, err := s.db.ListChunks()
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, chunks)
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	chunk, err := s.db.GetChunk(chi.URLParam(r, "id"))
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, chunk)
}

func (s *Server) handleUpdateChunk(w http.ResponseWriter, r *http.Request) {
	var req updateChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// A text change without a caller-supplied embedding re-embeds here.
	vec := req.Embedding
	if req.Text != nil && len(vec) == 0 {
		var err error
		vec, err = s.embedder.Embed(r.Context(), *req.Text)
		if err != nil {
			s.logger.Error("embedding failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "embedding provider failure")
			return
		}
	}

	chunk, err := s.db.UpdateChunk(chi.URLParam(r, "id"), model.ChunkUpdate{
		Text:       req.Text,
		Embedding:  vec,
		Metadata:   req.Metadata,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		s.respondDBError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, chunk)
}

func (s *Server) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteChunk(chi.URLParam(r, "id")); err != nil {
		s.respondDBError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "limit must be positive")
		return
	}

	vec, err := s.embedder.Embed(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("embedding failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "embedding provider failure")
		return
	}

	hits, err := s.db.Query(req.Collection, collection.IndexType(req.IndexType), vec, req.Limit, req.Filter)
	if err != nil {
		s.respondDBError(w, err)
		return
	}

	results := make([]queryResult, len(hits))
	for i, hit := range hits {
		results[i] = queryResult{ID: hit.ID, Text: hit.Text, Score: hit.Score, Metadata: hit.Metadata}
	}
	s.respondJSON(w, http.StatusOK, queryResponse{Results: results})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

// respondDBError maps the database's public error set to HTTP status codes.
func (s *Server) respondDBError(w http.ResponseWriter, err error) {
	var dm *quiver.ErrDimensionMismatch
	switch {
	case errors.Is(err, quiver.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, quiver.ErrAlreadyExists):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &dm):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, quiver.ErrUnknownIndex),
		errors.Is(err, quiver.ErrInvalidK),
		errors.Is(err, quiver.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, embedding.ErrProvider):
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Error("internal error", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}
