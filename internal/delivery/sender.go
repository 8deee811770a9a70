package delivery

import (
	"context"
	"log/slog"

	"github.com/vietddude/courier/internal/core/domain"
)

// Sender is the injected outbound transport. Implementations live in the
// embedding application (SMTP, provider APIs); this package only defines the
// contract and a dry-run stand-in.
type Sender interface {
	Send(ctx context.Context, job *domain.EmailJob) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, job *domain.EmailJob) error

func (f SenderFunc) Send(ctx context.Context, job *domain.EmailJob) error {
	return f(ctx, job)
}

// DryRunSender logs deliveries instead of sending. Used by the standalone
// binary, which has no transport wired.
type DryRunSender struct {
	log *slog.Logger
}

// NewDryRunSender creates a sender that accepts everything.
func NewDryRunSender() *DryRunSender {
	return &DryRunSender{log: slog.Default().With("component", "dry_run_sender")}
}

func (s *DryRunSender) Send(ctx context.Context, job *domain.EmailJob) error {
	s.log.Info("Dry-run delivery",
		"job", job.ID, "recipient", job.Recipient, "subject", job.Subject, "attempt", job.Attempts)
	return nil
}
