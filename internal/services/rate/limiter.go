package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

type Action string

const (
	ActionPurchase Action = "purchase"
	ActionLookup   Action = "lookup"
)

// Subject is whoever the request is attributed to. An authenticated user is
// limited by identity rather than address, so shared networks are not
// penalized for one abusive neighbor.
type Subject struct {
	UserID int64
	IP     string
}

func (s Subject) key() (string, bool) {
	if s.UserID > 0 {
		return "uid:" + strconv.FormatInt(s.UserID, 10), true
	}
	if s.IP != "" {
		return "ip:" + s.IP, true
	}
	return "", false
}

type Rule struct {
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed       bool
	Count         int64
	RetryAfterSec int64
}

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	WindowState(ctx context.Context, key string) (int64, time.Duration, error)
}

type Limiter struct {
	store WindowStore
}

func NewLimiter(store WindowStore) *Limiter {
	return &Limiter{store: store}
}

// Allow checks the counter for (subject, action) against the rule. A denied
// attempt is not recorded, so hammering a full window does not extend it.
func (l *Limiter) Allow(ctx context.Context, subject Subject, action Action, rule Rule) (Decision, error) {
	if l.store == nil {
		return Decision{}, fmt.Errorf("rate limiter store is nil")
	}
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true}, nil
	}

	subjectKey, ok := subject.key()
	if !ok {
		return Decision{}, fmt.Errorf("rate subject has neither identity nor address")
	}
	key := windowKey(subjectKey, action)

	count, ttl, err := l.store.WindowState(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if count >= int64(rule.Limit) {
		return Decision{
			Allowed:       false,
			Count:         count,
			RetryAfterSec: ceilSeconds(ttl),
		}, nil
	}

	count, _, err = l.store.IncrementWindow(ctx, key, rule.Window)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true, Count: count}, nil
}

func windowKey(subjectKey string, action Action) string {
	return "rate:" + string(action) + ":" + subjectKey
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	if sec <= 0 {
		sec = 1
	}
	return sec
}
