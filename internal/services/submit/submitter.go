// Package submit broadcasts signed TON transfers through the wallet
// collaborator with single-flight discipline.
package submit

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrWalletNotInitialized = errors.New("wallet not initialized")
	ErrInvalidRecipient     = errors.New("invalid recipient address")
	ErrInvalidAmount        = errors.New("invalid transfer amount")
	ErrBroadcastFailed      = errors.New("broadcast failed")
)

var txHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Wallet is the signing collaborator. Implementations are not safe for
// concurrent broadcasts; the Submitter serializes access.
type Wallet interface {
	Init(ctx context.Context) error
	Transfer(ctx context.Context, destination string, amountTON float64, comment string) (string, error)
}

type Submitter struct {
	wallet Wallet
	logger *zap.Logger

	mu          sync.Mutex
	initialized bool
}

type Dependencies struct {
	Wallet Wallet
	Logger *zap.Logger
}

func New(deps Dependencies) (*Submitter, error) {
	if deps.Wallet == nil {
		return nil, fmt.Errorf("submit: wallet is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{wallet: deps.Wallet, logger: logger}, nil
}

// Submit signs and broadcasts one transfer, returning the lowercase hex
// transaction hash. The wallet is initialized lazily on the first call
// and every broadcast holds the wallet lock for its full duration so
// sequence numbers are never reused across concurrent purchases.
func (s *Submitter) Submit(ctx context.Context, destination string, amountTON float64, comment string) (string, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return "", ErrInvalidRecipient
	}
	if amountTON <= 0 {
		return "", ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		if err := s.wallet.Init(ctx); err != nil {
			return "", errors.Join(ErrWalletNotInitialized, err)
		}
		s.initialized = true
	}

	hash, err := s.wallet.Transfer(ctx, destination, amountTON, comment)
	if err != nil {
		s.logger.Warn("transfer broadcast failed",
			zap.String("destination", destination),
			zap.Error(err))
		return "", errors.Join(ErrBroadcastFailed, err)
	}

	hash = strings.ToLower(strings.TrimSpace(hash))
	if !txHashPattern.MatchString(hash) {
		return "", fmt.Errorf("%w: unexpected tx hash %q", ErrBroadcastFailed, hash)
	}

	s.logger.Info("transfer broadcast",
		zap.String("destination", destination),
		zap.Float64("amount_ton", amountTON),
		zap.String("tx_hash", hash))

	return hash, nil
}
