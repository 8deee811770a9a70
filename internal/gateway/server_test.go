package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vietddude/courier/internal/core/domain"
	"github.com/vietddude/courier/internal/queue"
	"github.com/vietddude/courier/internal/ratelimit"
)

func newTestServer() (*Server, *queue.Queue) {
	q := queue.NewQueue()
	s := NewServer(q, ratelimit.NewFactory(), ServerOptions{Port: 0})
	return s, q
}

func do(s *Server, method, path, body, addr string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueEndpoint(t *testing.T) {
	s, q := newTestServer()

	rec := do(s, http.MethodPost, "/v1/emails",
		`{"recipient":"a@example.com","subject":"hi","content":"hello","priority":"high"}`,
		"192.0.2.1:1000")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool   `json:"success"`
		JobID   string `json:"jobId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Success || body.JobID == "" {
		t.Errorf("body = %+v, want success with job id", body)
	}

	job := q.Next()
	if job == nil || job.Recipient != "a@example.com" || job.Priority != domain.PriorityHigh {
		t.Errorf("enqueued job = %+v, want recipient a@example.com with high priority", job)
	}
}

func TestEnqueueValidation(t *testing.T) {
	s, _ := newTestServer()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing recipient", `{"subject":"hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/v1/emails", tt.body, "192.0.2.1:1000")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestEnqueueIPRateLimited(t *testing.T) {
	s, _ := newTestServer()

	// The IP preset allows 5 per minute.
	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rec = do(s, http.MethodPost, "/v1/emails",
			`{"recipient":"a@example.com"}`, "192.0.2.9:1000")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("6th request status = %d, want 429", rec.Code)
	}
}

func TestEnqueueRecipientRateLimited(t *testing.T) {
	s, _ := newTestServer()

	// The per-recipient preset allows 50 per day. Spread the calls across
	// enough source IPs to stay under the per-IP preset, so the 51st
	// rejection can only come from the recipient budget.
	body := `{"recipient":"hot@example.com"}`
	var rec *httptest.ResponseRecorder
	for i := 0; i <= 50; i++ {
		addr := fmt.Sprintf("192.0.2.%d:1000", 10+i/5)
		rec = do(s, http.MethodPost, "/v1/emails", body, addr)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("51st request status = %d, want 429 (body %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "50" {
		t.Errorf("X-RateLimit-Limit = %q, want 50", got)
	}

	var envelope struct {
		Success   bool   `json:"success"`
		Error     string `json:"error"`
		RateLimit struct {
			Limit     int64 `json:"limit"`
			Remaining int64 `json:"remaining"`
		} `json:"rateLimit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if envelope.Success || envelope.Error == "" {
		t.Errorf("envelope = %+v, want success=false with error message", envelope)
	}
	if envelope.RateLimit.Limit != 50 || envelope.RateLimit.Remaining != 0 {
		t.Errorf("rateLimit = %+v, want limit 50 remaining 0", envelope.RateLimit)
	}

	// A different recipient from a fresh IP is unaffected.
	rec = do(s, http.MethodPost, "/v1/emails", `{"recipient":"cold@example.com"}`, "192.0.2.99:1000")
	if rec.Code != http.StatusAccepted {
		t.Errorf("other recipient status = %d, want 202", rec.Code)
	}
}

func TestWhitelistEndpoints(t *testing.T) {
	s, _ := newTestServer()

	// Unknown limiter names are a 404.
	rec := do(s, http.MethodPost, "/v1/limiters/user/whitelist",
		`{"identifier":"10.0.0.1"}`, "192.0.2.1:1000")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown limiter status = %d, want 404", rec.Code)
	}

	rec = do(s, http.MethodPost, "/v1/limiters/ip/whitelist", `{"reason":"partner"}`, "192.0.2.1:1000")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing identifier status = %d, want 400", rec.Code)
	}

	// Whitelisting an IP exempts it from the per-IP preset.
	rec = do(s, http.MethodPost, "/v1/limiters/ip/whitelist",
		`{"identifier":"192.0.2.50","reason":"partner"}`, "192.0.2.1:1000")
	if rec.Code != http.StatusOK {
		t.Fatalf("whitelist add status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	for i := 0; i < 8; i++ {
		rec = do(s, http.MethodPost, "/v1/emails",
			`{"recipient":"a@example.com"}`, "192.0.2.50:1000")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("whitelisted request %d status = %d, want 202", i+1, rec.Code)
		}
	}

	// Removal restores the limit.
	rec = do(s, http.MethodDelete, "/v1/limiters/ip/whitelist/192.0.2.50", "", "192.0.2.1:1000")
	if rec.Code != http.StatusOK {
		t.Fatalf("whitelist remove status = %d, want 200", rec.Code)
	}
	rec = do(s, http.MethodDelete, "/v1/limiters/ip/whitelist/192.0.2.50", "", "192.0.2.1:1000")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rec.Code)
	}
	for i := 0; i < 6; i++ {
		rec = do(s, http.MethodPost, "/v1/emails",
			`{"recipient":"b@example.com"}`, "192.0.2.50:1000")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("6th post-removal request status = %d, want 429", rec.Code)
	}
}

func TestBreachesEndpoint(t *testing.T) {
	s, _ := newTestServer()

	rec := do(s, http.MethodGet, "/v1/limiters/user/breaches", "", "192.0.2.1:1000")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown limiter status = %d, want 404", rec.Code)
	}

	// The 5th request hits the per-IP limit exactly, the 6th is rejected;
	// both leave a notification in the history.
	for i := 0; i < 6; i++ {
		do(s, http.MethodPost, "/v1/emails", `{"recipient":"a@example.com"}`, "192.0.2.7:1000")
	}

	rec = do(s, http.MethodGet, "/v1/limiters/ip/breaches", "", "192.0.2.1:1000")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var breaches []domain.BreachNotification
	if err := json.NewDecoder(rec.Body).Decode(&breaches); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(breaches) != 2 {
		t.Fatalf("breaches = %d, want 2", len(breaches))
	}
	last := breaches[len(breaches)-1]
	if last.Identifier != "192.0.2.7" || last.Level != domain.BreachWarning {
		t.Errorf("last breach = %+v, want identifier 192.0.2.7 at warning", last)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, q := newTestServer()
	q.Add(domain.JobSpec{Recipient: "a@example.com"})

	rec := do(s, http.MethodGet, "/v1/queue/stats", "", "192.0.2.1:1000")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats domain.QueueStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats.Pending != 1 {
		t.Errorf("pending = %d, want 1", stats.Pending)
	}
}

func TestDeadLetterEndpoints(t *testing.T) {
	s, q := newTestServer()

	q.Add(domain.JobSpec{Recipient: "dead@example.com"})
	job := q.Next()
	job.ErrorHistory = append(job.ErrorHistory, domain.ErrorRecord{
		Error:    "535 authentication failed",
		Category: domain.CategoryAuthentication,
	})
	q.DeadLetter(job)

	rec := do(s, http.MethodGet, "/v1/queue/dead-letter", "", "192.0.2.1:1000")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var items []struct {
		Job         *domain.EmailJob `json:"job"`
		Translation *struct {
			NeedsAttention bool `json:"needs_attention"`
		} `json:"translation"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Translation == nil || !items[0].Translation.NeedsAttention {
		t.Error("authentication dead-letter not flagged needs_attention")
	}

	// Revive it.
	rec = do(s, http.MethodPost, "/v1/queue/dead-letter/"+job.ID+"/retry", "", "192.0.2.1:1000")
	if rec.Code != http.StatusOK {
		t.Errorf("retry status = %d, want 200", rec.Code)
	}
	if got := q.Stats().Pending; got != 1 {
		t.Errorf("pending after revive = %d, want 1", got)
	}

	// Unknown ID is a 404.
	rec = do(s, http.MethodPost, "/v1/queue/dead-letter/nope/retry", "", "192.0.2.1:1000")
	if rec.Code != http.StatusNotFound {
		t.Errorf("retry unknown status = %d, want 404", rec.Code)
	}

	// Clear reports how many were dropped.
	q.Add(domain.JobSpec{Recipient: "dead2@example.com"})
	q.DeadLetter(q.Next())
	rec = do(s, http.MethodDelete, "/v1/queue/dead-letter", "", "192.0.2.1:1000")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", rec.Code)
	}
	var cleared struct {
		Cleared int `json:"cleared"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&cleared); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if cleared.Cleared != 1 {
		t.Errorf("cleared = %d, want 1", cleared.Cleared)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := do(s, http.MethodGet, "/health", "", "192.0.2.1:1000")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
