package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/careerhunt/kg-engine/engine/ingest"
	"github.com/careerhunt/kg-engine/engine/kg"
	"github.com/careerhunt/kg-engine/engine/match"
	"github.com/careerhunt/kg-engine/engine/rebuild"
)

type testEncoder struct{}

func (testEncoder) Encode(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func newTestAPI(t *testing.T) *apiServer {
	t.Helper()
	dir := t.TempDir()
	store, err := kg.Open(kg.DefaultOptions(dir), testEncoder{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	csvPath := filepath.Join(dir, "jobs.csv")
	os.WriteFile(csvPath, []byte("job_id,title,company,required_skills\n1,Dev,Acme,Go\n"), 0o644)

	return &apiServer{
		store:     store,
		ingest:    ingest.NewService(store, nil),
		match:     match.NewService(store, nil, nil),
		scheduler: rebuild.NewScheduler(store, csvPath, "", rebuild.DefaultTrainConfig(), nil),
		encoder:   testEncoder{},
		logger:    slog.Default(),
	}
}

func post(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestIngestAndEvaluateFlow(t *testing.T) {
	api := newTestAPI(t)

	rec := post(t, api.handleIngestJob, ingest.JobRequest{
		JobID:   "1",
		JobText: "Required skills: Python, Go",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest job status = %d: %s", rec.Code, rec.Body)
	}

	rec = post(t, api.handleIngestCandidate, ingest.CandidateRequest{
		ApplicationID: "A1",
		CVText:        "Skills: Python, SQL",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest candidate status = %d: %s", rec.Code, rec.Body)
	}

	rec = post(t, api.handleEvaluate, EvaluateRequest{Job: "job_1", Candidate: "candidate_A1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate status = %d: %s", rec.Code, rec.Body)
	}
	var res match.MatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.GraphScore != 0.5 {
		t.Errorf("graph score = %v, want 0.5", res.GraphScore)
	}
	if len(res.MissingSkills) != 1 || res.MissingSkills[0] != "Go" {
		t.Errorf("missing skills = %v, want [Go]", res.MissingSkills)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	api := newTestAPI(t)

	rec := post(t, api.handleAddNode, AddNodeRequest{Node: "robot_x", Type: "robot"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid type status = %d, want 400", rec.Code)
	}

	rec = post(t, api.handleEvaluate, EvaluateRequest{Job: "job_ghost", Candidate: "candidate_ghost"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("not found status = %d, want 404", rec.Code)
	}

	req := httptest.NewRequest("POST", "/", bytes.NewReader([]byte("{not json")))
	recBad := httptest.NewRecorder()
	api.handleRank(recBad, req)
	if recBad.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", recBad.Code)
	}
}

func TestHandleAddNodeTypePrefixConflict(t *testing.T) {
	api := newTestAPI(t)

	rec := post(t, api.handleAddNode, AddNodeRequest{Node: "candidate_X", Type: "job"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("conflicting type status = %d, want 400: %s", rec.Code, rec.Body)
	}

	// A matching type is redundant but fine.
	rec = post(t, api.handleAddNode, AddNodeRequest{Node: "candidate_X", Type: "candidate"})
	if rec.Code != http.StatusOK {
		t.Errorf("matching type status = %d: %s", rec.Code, rec.Body)
	}

	// An unprefixed name takes its kind from the declared type.
	rec = post(t, api.handleAddNode, AddNodeRequest{Node: "Kafka", Type: "skill"})
	if rec.Code != http.StatusOK {
		t.Fatalf("untyped name status = %d: %s", rec.Code, rec.Body)
	}
	var res map[string]any
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res["node"] != "skill_Kafka" {
		t.Errorf("node = %v, want skill_Kafka", res["node"])
	}
}

func TestHandleAddNodeAndStats(t *testing.T) {
	api := newTestAPI(t)

	rec := post(t, api.handleAddNode, AddNodeRequest{
		Node:      "job_9",
		Type:      "job",
		Neighbors: []string{"skill_Go", "company_Acme"},
		Metadata:  map[string]any{"title": "Platform Engineer"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add node status = %d: %s", rec.Code, rec.Body)
	}

	// Re-adding reports exists without changing anything.
	rec = post(t, api.handleAddNode, AddNodeRequest{Node: "job_9", Type: "job"})
	if rec.Code != http.StatusOK {
		t.Fatalf("re-add status = %d", rec.Code)
	}
	var res map[string]any
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res["status"] != "exists" {
		t.Errorf("re-add status = %v, want exists", res["status"])
	}

	statsRec := httptest.NewRecorder()
	api.handleStats(statsRec, httptest.NewRequest("GET", "/api/stats", nil))
	var stats kg.Stats
	if err := json.Unmarshal(statsRec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Nodes != 3 || stats.Edges != 2 {
		t.Errorf("stats = %+v, want 3 nodes 2 edges", stats)
	}
}

func TestHandleSearch(t *testing.T) {
	api := newTestAPI(t)
	post(t, api.handleIngestJob, ingest.JobRequest{JobID: "1", JobText: "Required skills: Go"})

	rec := post(t, api.handleSearch, SearchRequest{Query: "golang", K: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d: %s", rec.Code, rec.Body)
	}
	var res struct {
		Results []match.SearchHit `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 2 {
		t.Errorf("results = %+v, want 2", res.Results)
	}

	rec = post(t, api.handleSearch, SearchRequest{Query: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d, want 400", rec.Code)
	}
}

func TestConfigDefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("KG_CONFIG_FILE", "")
	t.Setenv("PORT", "9999")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9999" {
		t.Errorf("port = %q, want env override", cfg.Port)
	}
	if cfg.RebuildAt != rebuild.DefaultDailyAt {
		t.Errorf("rebuild_at = %q, want default", cfg.RebuildAt)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("port: \"7777\"\ndata_dir: /tmp/kg\n"), 0o644)
	t.Setenv("KG_CONFIG_FILE", path)
	t.Setenv("PORT", "")
	cfg, err = loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "7777" || cfg.DataDir != "/tmp/kg" {
		t.Errorf("cfg = %+v, want yaml values", cfg)
	}
}
