// Package anomaly screens request paths against known attack
// signatures before they reach business logic.
package anomaly

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	pgrepo "github.com/nyckye/starshop/backend/internal/repo/postgres"
)

// blockedFragments cover probes for secrets and deploy files. A hit is
// answered with not-found so the prober learns nothing.
var blockedFragments = []string{
	"/.env", ".env", "/env", "/.git", ".git",
	"/config", "/.ssh", ".ssh", "/backup",
	"/.htaccess", ".htaccess", "/web.config",
	"/.npmrc", "/.dockerenv", "/dockerfile",
	"/docker-compose", "/.aws", "/.azure",
}

// flaggedFragments mark scanner and injection probes. A hit is logged
// but the request proceeds.
var flaggedFragments = []string{
	"/admin", "/wp-admin", "/phpmyadmin",
	"/shell", "/cmd", "/exec", "/../", "/etc/passwd",
	"select", "union", "drop", "insert", "<script>",
	"eval(", "base64_decode", "system(",
	"/cgi-bin", "/xmlrpc", "/wp-login", "/administrator",
}

type Verdict int

const (
	VerdictClean Verdict = iota
	VerdictFlagged
	VerdictBlocked
)

type Request struct {
	Path      string
	Method    string
	ClientIP  string
	UserAgent string
}

type EventStore interface {
	Insert(ctx context.Context, event pgrepo.SecurityEventRecord) error
}

type Filter struct {
	events  EventStore
	logger  *zap.Logger
	blocked []string
	flagged []string
	now     func() time.Time
}

type Dependencies struct {
	Events EventStore
	Logger *zap.Logger
}

func NewFilter(deps Dependencies) *Filter {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		events:  deps.Events,
		logger:  logger,
		blocked: blockedFragments,
		flagged: flaggedFragments,
		now:     time.Now,
	}
}

// Inspect classifies a request by its path. The verdict is computed
// from in-memory lists only; event persistence runs in the background
// so the request path never waits on the database.
func (f *Filter) Inspect(req Request) Verdict {
	path := strings.ToLower(req.Path)

	for _, fragment := range f.blocked {
		if strings.Contains(path, fragment) {
			f.logger.Warn("blocked sensitive path probe",
				zap.String("path", req.Path),
				zap.String("pattern", fragment),
				zap.String("client_ip", req.ClientIP))
			f.record("blocked", req, fragment)
			return VerdictBlocked
		}
	}

	for _, fragment := range f.flagged {
		if strings.Contains(path, fragment) {
			f.logger.Warn("suspicious request pattern",
				zap.String("path", req.Path),
				zap.String("pattern", fragment),
				zap.String("client_ip", req.ClientIP))
			f.record("flagged", req, fragment)
			return VerdictFlagged
		}
	}

	return VerdictClean
}

func (f *Filter) record(kind string, req Request, pattern string) {
	if f.events == nil {
		return
	}

	event := pgrepo.SecurityEventRecord{
		Kind:       kind,
		Path:       req.Path,
		Method:     req.Method,
		Pattern:    pattern,
		ClientIP:   req.ClientIP,
		UserAgent:  req.UserAgent,
		OccurredAt: f.now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.events.Insert(ctx, event); err != nil {
			f.logger.Error("persist security event", zap.Error(err))
		}
	}()
}
