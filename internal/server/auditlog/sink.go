// Package auditlog records user actions. Recording is best effort: a failed
// insert is logged and never reaches the caller.
package auditlog

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/dmitrijs2005/vaultbox/internal/server/repositories/audit"
)

const defaultTimeout = 3 * time.Second

// Client identifies where a request came from.
type Client struct {
	IP        string
	UserAgent string
}

type clientKey struct{}

// WithClient stores request origin in ctx for later audit records.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the origin stored by WithClient, if any.
func ClientFrom(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

// Recorder is what services depend on.
type Recorder interface {
	Record(ctx context.Context, userID int64, action string, details map[string]any)
}

// Sink writes audit entries through the audit repository.
type Sink struct {
	repo    audit.Repository
	log     logging.Logger
	timeout time.Duration
}

func NewSink(repo audit.Repository, log logging.Logger) *Sink {
	return &Sink{repo: repo, log: log, timeout: defaultTimeout}
}

// Record inserts one entry. It detaches from ctx cancellation so an audit
// row still lands after the client hangs up, but bounds the insert with its
// own timeout.
func (s *Sink) Record(ctx context.Context, userID int64, action string, details map[string]any) {
	client := ClientFrom(ctx)
	entry := &models.AuditEntry{
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	}

	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.repo.Insert(ictx, entry); err != nil {
		s.log.Warn(ctx, "audit log write failed", "action", action, "user_id", userID, "error", err)
	}
}
