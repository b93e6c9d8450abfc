// Package purchase runs the star purchase pipeline: validation,
// identity check, idempotency guard, broker calls, memo decoding,
// signed submission and the terminal ledger write.
package purchase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyckye/starshop/backend/internal/domain/enums"
	"github.com/nyckye/starshop/backend/internal/domain/rules"
	"github.com/nyckye/starshop/backend/internal/infra/fragment"
	"github.com/nyckye/starshop/backend/internal/pkg/validate"
	pgrepo "github.com/nyckye/starshop/backend/internal/repo/postgres"
	authsvc "github.com/nyckye/starshop/backend/internal/services/auth"
	notifysvc "github.com/nyckye/starshop/backend/internal/services/notify"
	submitsvc "github.com/nyckye/starshop/backend/internal/services/submit"
)

const (
	statusSuccess = string(enums.PurchaseStatusSuccess)
	statusFailed  = string(enums.PurchaseStatusFailed)

	txViewerBase = "https://tonviewer.com/transaction/"

	// Repeated identical intents inside one bucket share a derived
	// idempotency key; a deliberate later purchase gets a fresh one.
	derivedKeyBucket = 5 * time.Minute
)

var (
	ErrValidation       = errors.New("validation error")
	ErrAuthentication   = errors.New("authentication failed")
	ErrDuplicatePending = errors.New("purchase with this key is still in flight")
)

// Stable error classifications surfaced to clients. Broker and wallet
// internals never leak past these.
const (
	CodeRecipientNotFound    = "recipient_not_found"
	CodeBrokerInitFailed     = "broker_init_failed"
	CodeBrokerParamsFailed   = "broker_params_failed"
	CodeWalletNotInitialized = "wallet_not_initialized"
	CodeInvalidAmount        = "invalid_amount"
	CodeBroadcastFailed      = "broadcast_failed"
)

type Broker interface {
	ResolveRecipient(ctx context.Context, query string) (string, error)
	FetchProfile(ctx context.Context, query string) (fragment.Profile, error)
	InitPurchase(ctx context.Context, recipient string, quantity int) (string, error)
	FetchParams(ctx context.Context, recipient, reqID string, quantity int) (fragment.TransactionParams, error)
}

type MemoDecoder interface {
	Decode(payload string, quantity int64) string
}

type TransferSubmitter interface {
	Submit(ctx context.Context, destination string, amountTON float64, comment string) (string, error)
}

type Ledger interface {
	Begin(ctx context.Context, p pgrepo.NewPurchase) (pgrepo.PurchaseRecord, bool, error)
	Complete(ctx context.Context, idempotencyKey string, outcome pgrepo.PurchaseOutcome) (pgrepo.PurchaseRecord, error)
	ListByBuyer(ctx context.Context, buyerID int64, limit int) ([]pgrepo.PurchaseRecord, error)
}

type IdentityVerifier interface {
	Verify(initData string) (authsvc.Identity, error)
}

type LookupAudit interface {
	Record(ctx context.Context, username string, found bool, requesterID *int64, clientIP string) error
}

type Notifier interface {
	PurchaseCompleted(note notifysvc.PurchaseNote)
}

type Config struct {
	MinStars        int
	MaxStars        int
	RequireInitData bool
	HistoryLimit    int
}

type Service struct {
	broker    Broker
	memos     MemoDecoder
	submitter TransferSubmitter
	ledger    Ledger
	verifier  IdentityVerifier
	lookups   LookupAudit
	notifier  Notifier
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

type Dependencies struct {
	Broker    Broker
	Memos     MemoDecoder
	Submitter TransferSubmitter
	Ledger    Ledger
	Verifier  IdentityVerifier
	Lookups   LookupAudit
	Notifier  Notifier
	Logger    *zap.Logger
}

func New(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Broker == nil {
		return nil, fmt.Errorf("purchase: broker is required")
	}
	if deps.Submitter == nil {
		return nil, fmt.Errorf("purchase: submitter is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("purchase: ledger is required")
	}
	if cfg.MinStars <= 0 {
		cfg.MinStars = 50
	}
	if cfg.MaxStars <= 0 {
		cfg.MaxStars = 1_000_000
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		broker:    deps.Broker,
		memos:     deps.Memos,
		submitter: deps.Submitter,
		ledger:    deps.Ledger,
		verifier:  deps.Verifier,
		lookups:   deps.Lookups,
		notifier:  deps.Notifier,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}, nil
}

type BuyRequest struct {
	Username       string
	Quantity       int
	Method         enums.PaymentMethod
	InitData       string
	ClaimedBuyerID int64
	IdempotencyKey string
	ClientIP       string
}

type BuyResult struct {
	Success   bool
	Replayed  bool
	Recipient string
	Quantity  int64
	AmountTON float64
	Memo      string
	TxHash    string
	TxLink    string
	ErrorCode string
}

// Buy runs one purchase attempt end to end. Validation and
// authentication failures return sentinel errors before anything is
// written. Pipeline-stage failures are persisted as a failed ledger row
// and returned as a structured result, not an error.
func (s *Service) Buy(ctx context.Context, req BuyRequest) (BuyResult, error) {
	username := normalizeUsername(req.Username)
	if !validate.Required(username) {
		return BuyResult{}, fmt.Errorf("recipient username is required: %w", ErrValidation)
	}
	if !rules.QuantityInBounds(req.Quantity, s.cfg.MinStars, s.cfg.MaxStars) {
		return BuyResult{}, fmt.Errorf("quantity %d outside [%d, %d]: %w",
			req.Quantity, s.cfg.MinStars, s.cfg.MaxStars, ErrValidation)
	}
	if req.Method == "" {
		req.Method = enums.PaymentMethodTON
	}
	if _, err := rules.PriceFor(req.Quantity, req.Method); err != nil {
		return BuyResult{}, fmt.Errorf("%v: %w", err, ErrValidation)
	}

	identity, err := s.authenticate(req)
	if err != nil {
		return BuyResult{}, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = s.deriveKey(identity, username, req)
	}

	record, created, err := s.ledger.Begin(ctx, pgrepo.NewPurchase{
		IdempotencyKey: key,
		BuyerID:        buyerID(identity),
		BuyerUsername:  buyerUsername(identity),
		Recipient:      username,
		Quantity:       int64(req.Quantity),
		PaymentMethod:  string(req.Method),
		ClientIP:       optional(req.ClientIP),
	})
	if err != nil {
		return BuyResult{}, fmt.Errorf("begin purchase record: %w", err)
	}
	if !created {
		return s.replay(record)
	}

	result, outcome := s.runPipeline(ctx, username, req.Quantity)

	final, err := s.ledger.Complete(ctx, key, outcome)
	if err != nil {
		s.logger.Error("persist purchase outcome",
			zap.String("idempotency_key", key),
			zap.Error(err))
		if result.Success {
			// The transfer happened; report it even though the
			// ledger write failed.
			return result, nil
		}
		return BuyResult{}, fmt.Errorf("complete purchase record: %w", err)
	}

	if result.Success && s.notifier != nil {
		s.notifier.PurchaseCompleted(notifysvc.PurchaseNote{
			BuyerID:       derefInt64(final.BuyerID),
			BuyerUsername: derefString(final.BuyerUsername),
			Recipient:     username,
			Quantity:      int64(req.Quantity),
			AmountTON:     result.AmountTON,
			TxHash:        result.TxHash,
			TxLink:        result.TxLink,
		})
	}

	return result, nil
}

// runPipeline performs the three broker calls and the broadcast,
// reporting both the client-facing result and the ledger outcome.
func (s *Service) runPipeline(ctx context.Context, username string, quantity int) (BuyResult, pgrepo.PurchaseOutcome) {
	fail := func(code string, err error) (BuyResult, pgrepo.PurchaseOutcome) {
		s.logger.Warn("purchase pipeline failed",
			zap.String("recipient", username),
			zap.Int("quantity", quantity),
			zap.String("code", code),
			zap.Error(err))
		return BuyResult{
				Success:   false,
				Recipient: username,
				Quantity:  int64(quantity),
				ErrorCode: code,
			}, pgrepo.PurchaseOutcome{
				Status:    statusFailed,
				ErrorText: optional(code),
			}
	}

	recipient, err := s.broker.ResolveRecipient(ctx, username)
	if err != nil {
		return fail(CodeRecipientNotFound, err)
	}

	reqID, err := s.broker.InitPurchase(ctx, recipient, quantity)
	if err != nil {
		return fail(CodeBrokerInitFailed, err)
	}

	params, err := s.broker.FetchParams(ctx, recipient, reqID, quantity)
	if err != nil {
		return fail(CodeBrokerParamsFailed, err)
	}

	memo := ""
	if s.memos != nil {
		memo = s.memos.Decode(params.Payload, int64(quantity))
	}

	amountTON := rules.TONFromNano(params.AmountNano)
	hash, err := s.submitter.Submit(ctx, params.Address, amountTON, memo)
	if err != nil {
		return fail(submitCode(err), err)
	}

	link := txViewerBase + hash
	s.logger.Info("purchase completed",
		zap.String("recipient", username),
		zap.Int("quantity", quantity),
		zap.Float64("amount_ton", amountTON),
		zap.String("tx_hash", hash))

	return BuyResult{
			Success:   true,
			Recipient: username,
			Quantity:  int64(quantity),
			AmountTON: amountTON,
			Memo:      memo,
			TxHash:    hash,
			TxLink:    link,
		}, pgrepo.PurchaseOutcome{
			Status:     statusSuccess,
			AmountNano: optionalInt64(params.AmountNano),
			TxHash:     optional(hash),
			TxLink:     optional(link),
		}
}

// replay resolves a duplicate idempotency key from the ledger without
// touching the broker or wallet.
func (s *Service) replay(record pgrepo.PurchaseRecord) (BuyResult, error) {
	status := enums.PurchaseStatus(record.Status)
	if !status.Terminal() {
		return BuyResult{}, ErrDuplicatePending
	}
	switch status {
	case enums.PurchaseStatusSuccess:
		return BuyResult{
			Success:   true,
			Replayed:  true,
			Recipient: record.Recipient,
			Quantity:  record.Quantity,
			AmountTON: rules.TONFromNano(derefInt64(record.AmountNano)),
			TxHash:    derefString(record.TxHash),
			TxLink:    derefString(record.TxLink),
		}, nil
	default:
		return BuyResult{
			Success:   false,
			Replayed:  true,
			Recipient: record.Recipient,
			Quantity:  record.Quantity,
			ErrorCode: derefString(record.ErrorText),
		}, nil
	}
}

type ProfileResult struct {
	Found     bool
	Username  string
	FirstName string
	LastName  string
	PhotoURL  string
	IsPremium bool
}

// CheckRecipient verifies a username can receive stars and audits the
// lookup. An unknown recipient is a normal outcome, not an error.
func (s *Service) CheckRecipient(ctx context.Context, query string, requesterID int64, clientIP string) (ProfileResult, error) {
	username := normalizeUsername(query)
	if !validate.Required(username) {
		return ProfileResult{}, fmt.Errorf("username is required: %w", ErrValidation)
	}

	profile, err := s.broker.FetchProfile(ctx, username)
	found := err == nil
	if err != nil && !errors.Is(err, fragment.ErrRecipientNotFound) {
		return ProfileResult{}, fmt.Errorf("fetch recipient profile: %w", err)
	}

	s.auditLookup(username, found, requesterID, clientIP)

	if !found {
		return ProfileResult{Found: false, Username: username}, nil
	}
	return ProfileResult{
		Found:     true,
		Username:  profile.Username,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		PhotoURL:  profile.PhotoURL,
		IsPremium: profile.IsPremium,
	}, nil
}

func (s *Service) History(ctx context.Context, initData string) ([]pgrepo.PurchaseRecord, error) {
	if s.verifier == nil {
		return nil, ErrAuthentication
	}
	identity, err := s.verifier.Verify(initData)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrAuthentication)
	}

	records, err := s.ledger.ListByBuyer(ctx, identity.UserID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list purchase history: %w", err)
	}
	return records, nil
}

func (s *Service) authenticate(req BuyRequest) (*authsvc.Identity, error) {
	initData := strings.TrimSpace(req.InitData)
	if initData == "" {
		if s.cfg.RequireInitData {
			return nil, fmt.Errorf("init data is required: %w", ErrAuthentication)
		}
		return nil, nil
	}
	if s.verifier == nil {
		return nil, fmt.Errorf("no verifier configured: %w", ErrAuthentication)
	}

	identity, err := s.verifier.Verify(initData)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrAuthentication)
	}
	if req.ClaimedBuyerID > 0 && identity.UserID != req.ClaimedBuyerID {
		return nil, fmt.Errorf("claimed buyer %d does not match verified identity: %w",
			req.ClaimedBuyerID, ErrAuthentication)
	}
	return &identity, nil
}

// deriveKey hashes the intent's identifying fields into an idempotency
// key when the caller supplied none.
func (s *Service) deriveKey(identity *authsvc.Identity, username string, req BuyRequest) string {
	var uid int64
	if identity != nil {
		uid = identity.UserID
	} else {
		uid = req.ClaimedBuyerID
	}
	bucket := s.now().UTC().Truncate(derivedKeyBucket).Unix()

	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%s|%d|%s|%s|%d",
		uid, username, req.Quantity, req.Method, req.ClientIP, bucket))
	return hex.EncodeToString(sum[:])
}

func (s *Service) auditLookup(username string, found bool, requesterID int64, clientIP string) {
	if s.lookups == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var requester *int64
		if requesterID > 0 {
			requester = &requesterID
		}
		if err := s.lookups.Record(ctx, username, found, requester, clientIP); err != nil {
			s.logger.Error("record recipient lookup", zap.Error(err))
		}
	}()
}

func submitCode(err error) string {
	switch {
	case errors.Is(err, submitsvc.ErrWalletNotInitialized):
		return CodeWalletNotInitialized
	case errors.Is(err, submitsvc.ErrInvalidRecipient), errors.Is(err, submitsvc.ErrInvalidAmount):
		return CodeInvalidAmount
	default:
		return CodeBroadcastFailed
	}
}

func normalizeUsername(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "@")
}

func buyerID(identity *authsvc.Identity) *int64 {
	if identity == nil || identity.UserID <= 0 {
		return nil
	}
	id := identity.UserID
	return &id
}

func buyerUsername(identity *authsvc.Identity) *string {
	if identity == nil || identity.Username == "" {
		return nil
	}
	name := identity.Username
	return &name
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
