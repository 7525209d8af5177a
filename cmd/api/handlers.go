package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/careerhunt/kg-engine/engine/domain"
	"github.com/careerhunt/kg-engine/engine/ingest"
	"github.com/careerhunt/kg-engine/engine/kg"
	"github.com/careerhunt/kg-engine/engine/match"
	"github.com/careerhunt/kg-engine/engine/rebuild"
)

type apiServer struct {
	store     *kg.Store
	ingest    *ingest.Service
	match     *match.Service
	scheduler *rebuild.Scheduler
	encoder   kg.Encoder
	logger    *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the engine's error kinds onto HTTP statuses.
func (s *apiServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSourceInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, rebuild.ErrRebuildInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decode[T any](w http.ResponseWriter, r *http.Request, req *T) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"rebuild": s.scheduler.State(),
	})
}

func (s *apiServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}

// AddNodeRequest is the JSON body for POST /api/nodes.
type AddNodeRequest struct {
	Node      string         `json:"node"`
	Type      string         `json:"type"`
	Neighbors []string       `json:"neighbors"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *apiServer) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Node == "" {
		writeError(w, http.StatusBadRequest, "node is required")
		return
	}

	id := domain.ParseID(req.Node)
	if req.Type != "" {
		kind := domain.Kind(req.Type)
		// A node named with an explicit kind prefix must agree with the
		// declared type; the type only fills in untyped names.
		if id.String() == req.Node && kind != id.Kind {
			writeError(w, http.StatusBadRequest, "type conflicts with node prefix")
			return
		}
		id = domain.NodeID{Kind: kind, Key: id.Key}
	}
	neighbors := make([]domain.NodeID, 0, len(req.Neighbors))
	for _, n := range req.Neighbors {
		neighbors = append(neighbors, domain.ParseID(n))
	}

	status, err := s.store.UpsertNode(r.Context(), id, neighbors, domain.Metadata(req.Metadata))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "node": id.String()})
}

func (s *apiServer) handleIngestCandidate(w http.ResponseWriter, r *http.Request) {
	var req ingest.CandidateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ApplicationID == "" {
		writeError(w, http.StatusBadRequest, "application_id is required")
		return
	}
	res, err := s.ingest.IngestCandidate(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleIngestJob(w http.ResponseWriter, r *http.Request) {
	var req ingest.JobRequest
	if !decode(w, r, &req) {
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	res, err := s.ingest.IngestJob(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EvaluateRequest is the JSON body for POST /api/evaluate.
type EvaluateRequest struct {
	Job       string `json:"job"`
	Candidate string `json:"candidate"`
	Explain   bool   `json:"explain"`
}

func (s *apiServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.match.EvaluateMatch(r.Context(), domain.ParseID(req.Job), domain.ParseID(req.Candidate), req.Explain)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RankRequest is the JSON body for POST /api/rank.
type RankRequest struct {
	Job        string   `json:"job"`
	Candidates []string `json:"candidates"`
	TopN       int      `json:"top_n"`
	Explain    bool     `json:"explain"`
}

func (s *apiServer) handleRank(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if !decode(w, r, &req) {
		return
	}
	ids := make([]domain.NodeID, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		ids = append(ids, domain.ParseID(c))
	}
	res, err := s.match.RankCandidates(r.Context(), domain.ParseID(req.Job), ids, req.TopN, req.Explain)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.K <= 0 {
		req.K = 10
	}
	hits, err := s.match.SearchByText(r.Context(), s.encoder, req.Query, req.K)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

// AnomalyRequest is the JSON body for POST /api/anomaly.
type AnomalyRequest struct {
	Skill        string  `json:"skill"`
	Target       string  `json:"target"`
	MaxDepth     int     `json:"max_depth"`
	SimThreshold float64 `json:"sim_threshold"`
}

func (s *apiServer) handleAnomaly(w http.ResponseWriter, r *http.Request) {
	var req AnomalyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.match.CheckAnomaly(r.Context(), req.Skill, req.Target, req.MaxDepth, req.SimThreshold)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRebuild kicks a full rebuild in the background. 202 when started,
// 409 when one is already running.
func (s *apiServer) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.scheduler.State() == "rebuilding" {
		writeError(w, http.StatusConflict, rebuild.ErrRebuildInProgress.Error())
		return
	}
	go func() {
		if err := s.scheduler.Trigger(context.Background()); err != nil {
			s.logger.Error("on-demand rebuild failed", "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuild started"})
}
