package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hyperjump/suggest/internal/indexer"
	"github.com/hyperjump/suggest/internal/models"
	"github.com/hyperjump/suggest/internal/storage"
	"github.com/hyperjump/suggest/internal/vector"
	"go.uber.org/zap"
)

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
		k = n
	}
	s.logger.Debug("suggest request", zap.String("query", query), zap.Int("k", k))

	response, err := s.search.Suggest(r.Context(), query, k)
	if err != nil {
		if errors.Is(err, models.ErrEmptyQuery) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondInternal(w, r, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	input, err := decodeScenarioInput(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("create scenario request", zap.String("title", input.Title))

	sc, err := s.indexer.CreateScenario(r.Context(), input)
	if err != nil {
		if errors.Is(err, indexer.ErrInvalidInput) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondInternal(w, r, "failed to create scenario", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]int64{"id": sc.ID})
}

func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := s.scenarioID(w, r)
	if !ok {
		return
	}
	input, err := decodeScenarioInput(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("update scenario request", zap.Int64("id", id), zap.String("title", input.Title))

	sc, err := s.indexer.UpdateScenario(r.Context(), id, input)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, sc)
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "scenario not found")
	case errors.Is(err, indexer.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.respondInternal(w, r, "failed to update scenario", err)
	}
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := s.scenarioID(w, r)
	if !ok {
		return
	}
	sc, err := s.search.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "scenario not found")
			return
		}
		s.respondInternal(w, r, "failed to load scenario", err)
		return
	}
	s.respondJSON(w, http.StatusOK, sc)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.storage.CountScenarios(r.Context())
	if err != nil {
		s.respondInternal(w, r, "failed to read status", err)
		return
	}
	resp := map[string]interface{}{
		"scenarios":        count,
		"index_type":       s.index.Type(),
		"index_state":      s.index.State().String(),
		"index_size":       s.index.Size(),
		"index_dimensions": s.index.Dimensions(),
		"sync_state":       "disabled",
		"database_path":    s.config.Storage.DatabasePath,
		"index_path":       s.config.Storage.IndexPath,
		"embedding_model":  s.config.Embedding.ModelPath,
		"default_limit":    s.config.Search.DefaultLimit,
		"max_limit":        s.config.Search.MaxLimit,
		"change_channel":   s.config.Sync.Channel,
		"change_retention": s.config.Sync.ChangeRetention.String(),
		"prune_schedule":   s.config.Sync.PruneSchedule,
	}
	if ivf, ok := s.index.(*vector.IVFIndex); ok {
		opts := ivf.Options()
		resp["index_lists"] = opts.NumLists
		resp["index_probes"] = opts.NumProbes
	}
	if s.sync != nil {
		resp["sync_state"] = s.sync.State().String()
		resp["sync_stats"] = s.sync.Stats()
	}

	paths := append(storage.DatabaseFiles(s.config.Storage.DatabasePath), s.config.Storage.IndexPath)
	diskBytes, err := storage.DiskUsageBytes(paths...)
	if err != nil {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	} else {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// scenarioID parses the {id} URL parameter, answering 400 when it is not a positive integer.
func (s *Server) scenarioID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid scenario id")
		return 0, false
	}
	return id, true
}

// decodeScenarioInput reads a scenario from a JSON body or from form fields.
func decodeScenarioInput(r *http.Request) (*models.ScenarioInput, error) {
	var input models.ScenarioInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return nil, err
		}
		return &input, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	input.Title = r.PostForm.Get("title")
	input.Description = r.PostForm.Get("description")
	return &input, nil
}

// respondInternal logs err under a fresh reference and answers 500 without internal detail.
func (s *Server) respondInternal(w http.ResponseWriter, r *http.Request, message string, err error) {
	ref := uuid.NewString()
	s.logger.Error(message,
		zap.String("reference", ref),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err))
	s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": message, "reference": ref})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
