package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/careerhunt/kg-engine/engine/domain"
	"github.com/careerhunt/kg-engine/engine/kg"
	"github.com/careerhunt/kg-engine/pkg/fn"
)

const (
	// CandidateSubject carries CV ingestion requests over NATS.
	CandidateSubject = "engine.ingest.candidate"
	// JobSubject carries job-posting ingestion requests over NATS.
	JobSubject = "engine.ingest.job"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = "engine.ingest.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
)

// CandidateRequest is one CV to ingest.
type CandidateRequest struct {
	ApplicationID string `json:"application_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	UserID        string `json:"user_id"`
	CVText        string `json:"cv_text"`
}

// JobRequest is one job posting to ingest. Title and Company override the
// values parsed from JobText when set.
type JobRequest struct {
	JobID   string `json:"job_id"`
	Title   string `json:"title"`
	Company string `json:"company"`
	JobText string `json:"job_text"`
}

// IngestResult reports the outcome of an ingestion.
type IngestResult struct {
	Node   string          `json:"node"`
	Status kg.UpsertStatus `json:"status"`
	Skills []string        `json:"skills"`
}

// Service runs the ingestion pipeline against the shared store.
type Service struct {
	store  *kg.Store
	logger *slog.Logger
}

// NewService wires a Service.
func NewService(store *kg.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// --- Pipeline Stages ---

// ParseCandidate wraps the CV parser as a pipeline stage.
var ParseCandidate = fn.MapStage(func(text string) CandidateDoc {
	return ParseCandidateText(text)
})

// ParseJob wraps the job parser as a pipeline stage.
var ParseJob = fn.MapStage(func(text string) JobDoc {
	return ParseJobText(text)
})

// upsertCandidate materializes each parsed skill, then inserts the candidate
// node linked to all of them.
func (s *Service) upsertCandidate(req CandidateRequest) fn.Stage[CandidateDoc, IngestResult] {
	return func(ctx context.Context, doc CandidateDoc) fn.Result[IngestResult] {
		neighbors := make([]domain.NodeID, 0, len(doc.Skills))
		for _, skill := range doc.Skills {
			id := domain.SkillID(skill)
			if err := s.store.EnsureNode(ctx, id, nil); err != nil {
				return fn.Err[IngestResult](err)
			}
			neighbors = append(neighbors, id)
		}

		cand := domain.CandidateID(req.ApplicationID)
		meta := domain.Metadata{
			"name":           req.Name,
			"email":          req.Email,
			"user_id":        req.UserID,
			"application_id": req.ApplicationID,
			"experience":     doc.Experience,
		}
		status, err := s.store.UpsertNode(ctx, cand, neighbors, meta)
		if err != nil {
			return fn.Err[IngestResult](err)
		}
		return fn.Ok(IngestResult{Node: cand.String(), Status: status, Skills: doc.Skills})
	}
}

// upsertJob materializes the company and each required skill, then inserts
// the job node linked to all of them.
func (s *Service) upsertJob(req JobRequest) fn.Stage[JobDoc, IngestResult] {
	return func(ctx context.Context, doc JobDoc) fn.Result[IngestResult] {
		title := req.Title
		if title == "" {
			title = doc.Title
		}
		company := req.Company
		if company == "" {
			company = doc.Company
		}

		var neighbors []domain.NodeID
		if company != "" {
			id := domain.CompanyID(company)
			if err := s.store.EnsureNode(ctx, id, domain.Metadata{"name": company}); err != nil {
				return fn.Err[IngestResult](err)
			}
			neighbors = append(neighbors, id)
		}
		for _, skill := range doc.RequiredSkills {
			id := domain.SkillID(skill)
			if err := s.store.EnsureNode(ctx, id, nil); err != nil {
				return fn.Err[IngestResult](err)
			}
			neighbors = append(neighbors, id)
		}

		job := domain.JobID(req.JobID)
		meta := domain.Metadata{"title": title, "company": company}
		status, err := s.store.UpsertNode(ctx, job, neighbors, meta)
		if err != nil {
			return fn.Err[IngestResult](err)
		}
		return fn.Ok(IngestResult{Node: job.String(), Status: status, Skills: doc.RequiredSkills})
	}
}

// IngestCandidate parses a CV and upserts the candidate node.
func (s *Service) IngestCandidate(ctx context.Context, req CandidateRequest) (IngestResult, error) {
	pipeline := fn.Then(
		fn.TracedStage("ingest.parse_cv", ParseCandidate),
		fn.TracedStage("ingest.upsert_candidate", s.upsertCandidate(req)),
	)
	return pipeline(ctx, req.CVText).Unwrap()
}

// IngestJob parses a job posting and upserts the job node.
func (s *Service) IngestJob(ctx context.Context, req JobRequest) (IngestResult, error) {
	pipeline := fn.Then(
		fn.TracedStage("ingest.parse_job", ParseJob),
		fn.TracedStage("ingest.upsert_job", s.upsertJob(req)),
	)
	return pipeline(ctx, req.JobText).Unwrap()
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Subject string          `json:"subject"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
	Retries int             `json:"retries"`
}

// StartConsumer subscribes the service to the ingestion subjects so CVs and
// job postings can arrive over the broker as well as over HTTP. Failed
// messages are re-published with a retry header and dead-lettered after
// MaxRetries.
func (s *Service) StartConsumer(nc *nats.Conn) ([]*nats.Subscription, error) {
	candSub, err := nc.Subscribe(CandidateSubject, func(msg *nats.Msg) {
		handleMsg(s, nc, msg, func(ctx context.Context, req CandidateRequest) (IngestResult, error) {
			return s.IngestCandidate(ctx, req)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", CandidateSubject, err)
	}
	jobSub, err := nc.Subscribe(JobSubject, func(msg *nats.Msg) {
		handleMsg(s, nc, msg, func(ctx context.Context, req JobRequest) (IngestResult, error) {
			return s.IngestJob(ctx, req)
		})
	})
	if err != nil {
		candSub.Unsubscribe()
		return nil, fmt.Errorf("subscribe %s: %w", JobSubject, err)
	}
	return []*nats.Subscription{candSub, jobSub}, nil
}

func handleMsg[R any](s *Service, nc *nats.Conn, msg *nats.Msg, ingest func(context.Context, R) (IngestResult, error)) {
	var req R
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Error("ingest: unmarshal failed", "subject", msg.Subject, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := ingest(ctx, req)
	if err == nil {
		s.logger.Info("ingest: success", "subject", msg.Subject, "node", res.Node, "status", res.Status)
		return
	}

	retries := 0
	if msg.Header != nil {
		if v := msg.Header.Get("X-Retry-Count"); v != "" {
			fmt.Sscanf(v, "%d", &retries)
		}
	}
	retries++
	s.logger.Error("ingest: pipeline failed", "subject", msg.Subject, "error", err, "retry", retries)

	if retries >= MaxRetries {
		dlq := dlqMessage{Subject: msg.Subject, Payload: msg.Data, Error: err.Error(), Retries: retries}
		data, _ := json.Marshal(dlq)
		if err := nc.Publish(DLQSubject, data); err != nil {
			s.logger.Error("ingest: DLQ publish failed", "error", err)
		}
		return
	}

	retryMsg := nats.NewMsg(msg.Subject)
	retryMsg.Data = msg.Data
	retryMsg.Header = nats.Header{}
	retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
	if err := nc.PublishMsg(retryMsg); err != nil {
		s.logger.Error("ingest: retry publish failed", "error", err)
	}
}
