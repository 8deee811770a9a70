package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/courier/internal/core/domain"
	"github.com/vietddude/courier/internal/delivery"
	"github.com/vietddude/courier/internal/queue"
	"github.com/vietddude/courier/internal/ratelimit"
)

// Server exposes the enqueue API, queue management surface, and health and
// metrics endpoints.
type Server struct {
	queue   *queue.Queue
	factory *ratelimit.Factory
	server  *http.Server
	log     *slog.Logger
}

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	Port              int
	TrustForwardedFor bool
}

// NewServer wires routes and middleware.
func NewServer(q *queue.Queue, factory *ratelimit.Factory, opts ServerOptions) *Server {
	mux := http.NewServeMux()
	s := &Server{
		queue:   q,
		factory: factory,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", opts.Port),
			Handler: mux,
		},
		log: slog.Default().With("component", "gateway"),
	}

	// The enqueue path is gated per caller IP, then service-wide.
	enqueue := http.Handler(http.HandlerFunc(s.handleEnqueue))
	enqueue = Middleware(MiddlewareOptions{
		Limiter: factory.Global(),
		Name:    ratelimit.LimiterGlobal,
		KeyFn:   GlobalKeyFunc(),
	})(enqueue)
	enqueue = Middleware(MiddlewareOptions{
		Limiter: factory.IP(),
		Name:    ratelimit.LimiterIP,
		KeyFn:   ClientIPKeyFunc(opts.TrustForwardedFor),
	})(enqueue)

	mux.Handle("POST /v1/emails", enqueue)
	mux.HandleFunc("GET /v1/queue/stats", s.handleStats)
	mux.HandleFunc("GET /v1/queue/dead-letter", s.handleDeadLetter)
	mux.HandleFunc("POST /v1/queue/dead-letter/{id}/retry", s.handleRetryJob)
	mux.HandleFunc("DELETE /v1/queue/dead-letter", s.handleClearDeadLetter)
	mux.HandleFunc("POST /v1/limiters/{name}/whitelist", s.handleWhitelistAdd)
	mux.HandleFunc("DELETE /v1/limiters/{name}/whitelist/{identifier}", s.handleWhitelistRemove)
	mux.HandleFunc("GET /v1/limiters/{name}/breaches", s.handleBreaches)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var spec domain.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if spec.Recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	// Per-address budget is checked against the recipient, not the caller.
	res := s.factory.Email().Check(spec.Recipient)
	recordDecision(ratelimit.LimiterEmail, res)
	if !res.Allowed {
		setRateLimitHeaders(w, res)
		writeRateLimited(w, res)
		return
	}

	id := s.queue.Add(spec)
	s.log.Info("Job enqueued", "job", id, "recipient", spec.Recipient, "priority", spec.Priority)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"jobId":   id,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

// deadLetterItem pairs a dead-lettered job with the translated messages for
// its final failure.
type deadLetterItem struct {
	Job         *domain.EmailJob      `json:"job"`
	Translation *delivery.Translation `json:"translation,omitempty"`
}

func (s *Server) handleDeadLetter(w http.ResponseWriter, r *http.Request) {
	jobs := s.queue.DeadLetterJobs()
	items := make([]deadLetterItem, 0, len(jobs))
	for _, job := range jobs {
		item := deadLetterItem{Job: job}
		if n := len(job.ErrorHistory); n > 0 {
			t := delivery.Translate(job.ErrorHistory[n-1].Category)
			item.Translation = &t
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.queue.RetryJob(id) {
		writeError(w, http.StatusNotFound, "no dead-lettered job with that id")
		return
	}
	s.log.Info("Dead-lettered job revived", "job", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleClearDeadLetter(w http.ResponseWriter, r *http.Request) {
	n := s.queue.ClearDeadLetter()
	s.log.Info("Dead-letter queue cleared", "count", n)
	writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
}

// lookupLimiter resolves the {name} path segment against the registry,
// writing a 404 on miss.
func (s *Server) lookupLimiter(w http.ResponseWriter, r *http.Request) (*ratelimit.Limiter, bool) {
	l, ok := s.factory.Lookup(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "no limiter with that name")
	}
	return l, ok
}

type whitelistRequest struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
	TTLMs      int64  `json:"ttlMs"` // <= 0 means the entry never expires
}

func (s *Server) handleWhitelistAdd(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLimiter(w, r)
	if !ok {
		return
	}
	var req whitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identifier == "" {
		writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}
	l.AddToWhitelist(req.Identifier, req.Reason, time.Duration(req.TTLMs)*time.Millisecond)
	s.log.Info("Whitelist entry added", "limiter", r.PathValue("name"), "identifier", req.Identifier, "reason", req.Reason)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleWhitelistRemove(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLimiter(w, r)
	if !ok {
		return
	}
	identifier := r.PathValue("identifier")
	if !l.RemoveFromWhitelist(identifier) {
		writeError(w, http.StatusNotFound, "identifier is not whitelisted")
		return
	}
	s.log.Info("Whitelist entry removed", "limiter", r.PathValue("name"), "identifier", identifier)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleBreaches(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLimiter(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, l.Breaches())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
