package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/datanet-labs/datanet/pkg/canonicalize"
	"github.com/datanet-labs/datanet/pkg/claim"
	"github.com/datanet-labs/datanet/pkg/consensus"
	"github.com/datanet-labs/datanet/pkg/decision"
	"github.com/datanet-labs/datanet/pkg/document"
	"github.com/datanet-labs/datanet/pkg/observability"
	"github.com/datanet-labs/datanet/pkg/runner"
	"github.com/datanet-labs/datanet/pkg/search"
	"github.com/datanet-labs/datanet/pkg/store"
)

// Version is the service version reported by the root endpoint.
const Version = "1.0.0"

// Server wires the pipeline components behind HTTP handlers.
type Server struct {
	store     store.Store
	runner    *runner.Runner
	composer  *decision.Composer
	policy    decision.Policy
	validator *claim.Validator
	index     *search.Index
	metrics   *observability.Metrics
	logger    *slog.Logger

	apiKeys []string
	limiter *GlobalRateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKeys enables request authentication.
func WithAPIKeys(keys []string) Option {
	return func(s *Server) { s.apiKeys = keys }
}

// WithMetrics attaches pipeline metrics; nil disables recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPolicy sets the acceptance policy applied to job results.
func WithPolicy(p decision.Policy) Option {
	return func(s *Server) { s.policy = p }
}

// WithRateLimit overrides the default per-IP rate limit.
func WithRateLimit(rps, burst int) Option {
	return func(s *Server) { s.limiter = NewGlobalRateLimiter(rps, burst) }
}

func NewServer(st store.Store, run *runner.Runner, opts ...Option) *Server {
	s := &Server{
		store:     st,
		runner:    run,
		composer:  decision.NewComposer(st),
		policy:    decision.AcceptAll{},
		validator: claim.NewValidator(),
		index:     search.NewIndex(),
		logger:    slog.Default().With("component", "api"),
		limiter:   NewGlobalRateLimiter(50, 100),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routing table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /hash", s.handleHash)
	mux.HandleFunc("POST /validate", s.handleValidate)
	mux.HandleFunc("POST /compare", s.handleCompare)
	mux.HandleFunc("POST /submit-agent", s.handleSubmitAgent)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /documents", s.handleAddDocument)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("POST /propose-to-canon", s.handlePropose)
	mux.HandleFunc("GET /reviews/pending", s.handlePendingReviews)
	mux.HandleFunc("POST /reviews/action", s.handleReviewAction)

	var h http.Handler = mux
	h = BodyLimit(h)
	h = APIKeyAuth(s.apiKeys, h)
	h = s.limiter.Middleware(h)
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody decodes JSON preserving number literals, so integers and floats
// survive the trip into the canonical serializer unchanged.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(dst)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		WriteNotFound(w, "unknown endpoint")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "datanet",
		"version": Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordCall(r.Context(), "hash")

	var req struct {
		Value any `json:"value"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	canonical, err := canonicalize.Canonicalize(req.Value)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"canonical": string(canonical),
		"hash":      canonicalize.HashBytes(canonical),
	})
}

// handleValidate checks one claim record against its document text. A record
// that fails validation is a normal outcome, not an HTTP error: the response
// is 200 with valid=false and the failure code.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.RecordCall(ctx, "validate")

	var req struct {
		Record        json.RawMessage `json:"record"`
		CanonicalText string          `json:"canonical_text"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Record) == 0 {
		WriteBadRequest(w, "record is required")
		return
	}

	rec, err := s.validator.ValidateJSON(req.Record, req.CanonicalText)
	if err != nil {
		var verr *claim.ValidationError
		if errors.As(err, &verr) {
			s.metrics.RecordValidationFailure(ctx, string(verr.Code))
			resp := map[string]any{
				"valid":  false,
				"code":   verr.Code,
				"reason": verr.Error(),
			}
			if verr.SpanIndex >= 0 {
				resp["span_index"] = verr.SpanIndex
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}
		WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"verdict": rec.Verdict,
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordCall(r.Context(), "compare")

	var req struct {
		Executions []consensus.Execution `json:"executions"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	writeJSON(w, http.StatusOK, consensus.Compare(req.Executions))
}

// handleSubmitAgent runs a task to consensus and composes an acceptance
// decision for the outcome.
func (s *Server) handleSubmitAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.RecordCall(ctx, "submit_agent")

	var req struct {
		Task map[string]any `json:"task"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Task) == 0 {
		WriteBadRequest(w, "task is required")
		return
	}

	record, err := s.runner.Run(ctx, req.Task)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	acceptance, err := s.composer.ComposeAcceptance(ctx, map[string]any{
		"job_id":     record.JobID,
		"agreed":     record.Consensus.Agreed,
		"status":     record.Status,
		"executions": record.Consensus.Executions,
	}, s.policy, "system")
	if err != nil {
		WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job":        record,
		"acceptance": acceptance,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.List(r.Context(), store.JobKeyPrefix)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key[len(store.JobKeyPrefix):])
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_ids": ids})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if store.ValidateKey(id) != nil {
		WriteBadRequest(w, "invalid job id")
		return
	}

	data, err := s.store.Get(r.Context(), store.JobKeyPrefix+id)
	if errors.Is(err, store.ErrNotFound) {
		WriteNotFound(w, fmt.Sprintf("job %s not found", id))
		return
	}
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// handleAddDocument extracts canonical text from raw HTML (or accepts text
// directly), persists the document under its drhash, and indexes it.
func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.RecordCall(ctx, "add_document")

	var req struct {
		RawHTML string `json:"raw_html"`
		Text    string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	var doc *document.Document
	switch {
	case req.RawHTML != "":
		doc = document.Extract(req.RawHTML)
	case req.Text != "":
		doc = document.New(req.Text)
	default:
		WriteBadRequest(w, "raw_html or text is required")
		return
	}

	if err := s.store.Put(ctx, store.DocumentKeyPrefix+doc.DRHash, doc); err != nil {
		WriteInternal(w, err)
		return
	}
	if s.index.Add(doc.DRHash, doc.Text) {
		s.metrics.AddIndexedDocuments(ctx, 1)
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.RecordCall(ctx, "search")

	query := r.URL.Query().Get("q")
	if query == "" {
		WriteBadRequest(w, "query parameter q is required")
		return
	}
	k := 10
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteBadRequest(w, "k must be a positive integer")
			return
		}
		k = n
	}

	started := time.Now()
	hits := s.index.Search(query, k)
	s.metrics.RecordSearchLatency(ctx, time.Since(started))

	if hits == nil {
		hits = []search.Hit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.RecordCall(ctx, "propose_to_canon")

	var req struct {
		CurrentCanon map[string]any `json:"current_canon"`
		Change       map[string]any `json:"change"`
		Rationale    string         `json:"rationale"`
		Author       string         `json:"author"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if req.Author == "" || len(req.Change) == 0 {
		WriteBadRequest(w, "author and change are required")
		return
	}

	record, err := s.composer.ProposeCanonUpdate(ctx, req.CurrentCanon, req.Change, req.Rationale, req.Author)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handlePendingReviews(w http.ResponseWriter, r *http.Request) {
	pending, err := s.composer.PendingReviews(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	if pending == nil {
		pending = []*decision.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) handleReviewAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.RecordCall(ctx, "review_action")

	var req struct {
		RecordID string `json:"record_id"`
		Action   string `json:"action"`
		Reviewer string `json:"reviewer"`
		Reason   string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if req.RecordID == "" || req.Reviewer == "" {
		WriteBadRequest(w, "record_id and reviewer are required")
		return
	}

	var err error
	var status string
	switch req.Action {
	case "approve":
		err = s.composer.Approve(ctx, req.RecordID, req.Reviewer)
		status = decision.StatusApproved
	case "reject":
		err = s.composer.Reject(ctx, req.RecordID, req.Reviewer, req.Reason)
		status = decision.StatusRejected
	default:
		WriteBadRequest(w, "action must be approve or reject")
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, "no such review record")
		return
	case errors.Is(err, decision.ErrNotPending):
		WriteConflict(w, err.Error())
		return
	case err != nil:
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"record_id": req.RecordID,
		"status":    status,
	})
}
