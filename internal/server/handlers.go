package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/veloxdb/veloxdb"
	"github.com/veloxdb/veloxdb/internal/simd"
)

type vectorRequest struct {
	Vector []float32 `json:"vector"`
}

type trainRequest struct {
	NumClusters int    `json:"num_clusters"`
	MaxIters    int    `json:"max_iters"`
	Metric      string `json:"metric"`
}

type searchRequest struct {
	QueryVector []float32 `json:"query_vector"`
	Metric      string    `json:"metric"`
	K           int       `json:"k"`
}

type simdRequest struct {
	Enabled *bool `json:"enabled"`
}

type match struct {
	ID       veloxdb.ID `json:"id"`
	Distance float32    `json:"distance"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type addResponse struct {
	statusResponse
	ID veloxdb.ID `json:"id"`
}

type trainResponse struct {
	statusResponse
	Stats veloxdb.Stats `json:"stats"`
}

type searchResponse struct {
	Status   string     `json:"status"`
	MatchID  veloxdb.ID `json:"match_id"`
	Distance float32    `json:"distance"`
	Cluster  int        `json:"cluster"`
	Scanned  int        `json:"scanned"`
	Matches  []match    `json:"matches,omitempty"`
}

type saveResponse struct {
	statusResponse
	Files []string `json:"files"`
}

type statsResponse struct {
	Vectors   int            `json:"vectors"`
	Dimension int            `json:"dimension"`
	SIMD      bool           `json:"simd"`
	ISA       string         `json:"isa"`
	Indexed   bool           `json:"indexed"`
	Metric    string         `json:"metric,omitempty"`
	Index     *veloxdb.Stats `json:"index,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "running", Message: "Server is operational."})
}

func (s *Server) handleAddVector(w http.ResponseWriter, r *http.Request) {
	var req vectorRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	id, err := s.db.Add(req.Vector)
	n := s.db.Len()
	s.mu.Unlock()

	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.StoredVectors.Set(float64(n))
	writeJSON(w, http.StatusOK, addResponse{
		statusResponse: statusResponse{Status: "success", Message: "Vector added successfully."},
		ID:             id,
	})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if !decode(w, r, &req) {
		return
	}
	metric, err := s.metric(req.Metric)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.log.InfoContext(r.Context(), "training index",
		"clusters", req.NumClusters, "max_iters", req.MaxIters, "metric", metric.String())

	s.mu.Lock()
	err = s.db.BuildIndex(r.Context(), req.NumClusters, req.MaxIters, metric)
	st, _ := s.db.TrainingStats()
	s.mu.Unlock()

	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trainResponse{
		statusResponse: statusResponse{Status: "success", Message: "Index trained successfully."},
		Stats:          st,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	metric, err := s.metric(req.Metric)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	k := req.K
	if k == 0 {
		k = 1
	}

	s.mu.RLock()
	res, err := s.db.SearchK(r.Context(), req.QueryVector, k, metric)
	s.mu.RUnlock()

	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := searchResponse{
		Status:   "success",
		MatchID:  res[0].ID,
		Distance: res[0].Distance,
		Cluster:  res[0].Cluster,
		Scanned:  res[0].Scanned,
	}
	if req.K > 1 {
		resp.Matches = make([]match, len(res))
		for i, m := range res {
			resp.Matches[i] = match{ID: m.ID, Distance: m.Distance}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSave writes the vectors and, when present, the index. A stale index
// file is removed so that a restart never pairs it with newer vectors.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	vectors, index := s.path(VectorsFile), s.path(IndexFile)
	files := []string{vectors}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.RLock()
	err := s.db.WriteFvecs(vectors)
	if err == nil {
		if s.db.Indexed() {
			err = s.db.SaveIndex(index)
			files = append(files, index)
		} else if rerr := os.Remove(index); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = fmt.Errorf("%w: remove stale index: %w", veloxdb.ErrIO, rerr)
		}
	}
	s.mu.RUnlock()

	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{
		statusResponse: statusResponse{Status: "success", Message: "State saved successfully."},
		Files:          files,
	})
}

func (s *Server) handleGetVector(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", raw))
		return
	}

	s.mu.RLock()
	vec, err := s.db.Get(veloxdb.ID(id))
	s.mu.RUnlock()

	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ID     veloxdb.ID `json:"id"`
		Vector []float32  `json:"vector"`
	}{veloxdb.ID(id), vec})
}

func (s *Server) handleSIMD(w http.ResponseWriter, r *http.Request) {
	var req simdRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	s.mu.Lock()
	s.db.SetSIMD(*req.Enabled)
	enabled := s.db.SIMD()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, struct {
		SIMD bool `json:"simd"`
	}{enabled})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	resp := statsResponse{
		Vectors:   s.db.Len(),
		Dimension: s.db.Dimension(),
		SIMD:      s.db.SIMD(),
		ISA:       simd.ActiveISA().String(),
		Indexed:   s.db.Indexed(),
	}
	if st, ok := s.db.TrainingStats(); ok {
		resp.Index = &st
	}
	if m, ok := s.db.IndexMetric(); ok {
		resp.Metric = m.String()
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) metric(name string) (veloxdb.Metric, error) {
	if name == "" {
		return s.cfg.DefaultMetric, nil
	}
	return veloxdb.ParseMetric(name)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", "request_id", RequestID(r.Context()), "error", err)
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	var dm *veloxdb.ErrDimensionMismatch
	switch {
	case errors.As(err, &dm),
		errors.Is(err, veloxdb.ErrInvalidParameter),
		errors.Is(err, veloxdb.ErrEmptyStore):
		return http.StatusBadRequest
	case errors.Is(err, veloxdb.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, struct {
		Detail string `json:"detail"`
	}{detail})
}

func levelFor(code int) slog.Level {
	switch {
	case code >= http.StatusInternalServerError:
		return slog.LevelError
	case code >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
