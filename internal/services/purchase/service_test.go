package purchase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/nyckye/starshop/backend/internal/infra/fragment"
	pgrepo "github.com/nyckye/starshop/backend/internal/repo/postgres"
	authsvc "github.com/nyckye/starshop/backend/internal/services/auth"
	memosvc "github.com/nyckye/starshop/backend/internal/services/memo"
	notifysvc "github.com/nyckye/starshop/backend/internal/services/notify"
	submitsvc "github.com/nyckye/starshop/backend/internal/services/submit"
)

type stubBroker struct {
	mu           sync.Mutex
	resolveCalls int
	initCalls    int
	paramsCalls  int

	recipientToken string
	reqID          string
	params         fragment.TransactionParams
	profile        fragment.Profile

	resolveErr error
	initErr    error
	paramsErr  error
	profileErr error
}

func (b *stubBroker) ResolveRecipient(ctx context.Context, query string) (string, error) {
	b.mu.Lock()
	b.resolveCalls++
	b.mu.Unlock()
	if b.resolveErr != nil {
		return "", b.resolveErr
	}
	return b.recipientToken, nil
}

func (b *stubBroker) FetchProfile(ctx context.Context, query string) (fragment.Profile, error) {
	if b.profileErr != nil {
		return fragment.Profile{}, b.profileErr
	}
	return b.profile, nil
}

func (b *stubBroker) InitPurchase(ctx context.Context, recipient string, quantity int) (string, error) {
	b.mu.Lock()
	b.initCalls++
	b.mu.Unlock()
	if b.initErr != nil {
		return "", b.initErr
	}
	return b.reqID, nil
}

func (b *stubBroker) FetchParams(ctx context.Context, recipient, reqID string, quantity int) (fragment.TransactionParams, error) {
	b.mu.Lock()
	b.paramsCalls++
	b.mu.Unlock()
	if b.paramsErr != nil {
		return fragment.TransactionParams{}, b.paramsErr
	}
	return b.params, nil
}

func (b *stubBroker) calls() (int, int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveCalls, b.initCalls, b.paramsCalls
}

type stubSubmitter struct {
	mu          sync.Mutex
	calls       int
	lastDest    string
	lastAmount  float64
	lastComment string
	hash        string
	err         error
}

func (s *stubSubmitter) Submit(ctx context.Context, destination string, amountTON float64, comment string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.lastDest = destination
	s.lastAmount = amountTON
	s.lastComment = comment
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.hash, nil
}

type memLedger struct {
	mu      sync.Mutex
	records map[string]pgrepo.PurchaseRecord
}

func newMemLedger() *memLedger {
	return &memLedger{records: map[string]pgrepo.PurchaseRecord{}}
}

func (l *memLedger) Begin(ctx context.Context, p pgrepo.NewPurchase) (pgrepo.PurchaseRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.records[p.IdempotencyKey]; ok {
		return existing, false, nil
	}
	record := pgrepo.PurchaseRecord{
		ID:             fmt.Sprintf("rec-%d", len(l.records)+1),
		IdempotencyKey: p.IdempotencyKey,
		BuyerID:        p.BuyerID,
		BuyerUsername:  p.BuyerUsername,
		Recipient:      p.Recipient,
		Quantity:       p.Quantity,
		PaymentMethod:  p.PaymentMethod,
		Status:         "pending",
	}
	l.records[p.IdempotencyKey] = record
	return record, true, nil
}

func (l *memLedger) Complete(ctx context.Context, key string, outcome pgrepo.PurchaseOutcome) (pgrepo.PurchaseRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	if !ok {
		return pgrepo.PurchaseRecord{}, pgrepo.ErrPurchaseNotFound
	}
	if record.Status == "pending" {
		record.Status = outcome.Status
		record.AmountNano = outcome.AmountNano
		record.TxHash = outcome.TxHash
		record.TxLink = outcome.TxLink
		record.ErrorText = outcome.ErrorText
		l.records[key] = record
	}
	return record, nil
}

func (l *memLedger) ListByBuyer(ctx context.Context, buyerID int64, limit int) ([]pgrepo.PurchaseRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []pgrepo.PurchaseRecord
	for _, record := range l.records {
		if record.BuyerID != nil && *record.BuyerID == buyerID {
			out = append(out, record)
		}
	}
	return out, nil
}

type stubVerifier struct {
	identity authsvc.Identity
	err      error
}

func (v *stubVerifier) Verify(initData string) (authsvc.Identity, error) {
	if v.err != nil {
		return authsvc.Identity{}, v.err
	}
	return v.identity, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notifysvc.PurchaseNote
}

func (n *recordingNotifier) PurchaseCompleted(note notifysvc.PurchaseNote) {
	n.mu.Lock()
	n.notes = append(n.notes, note)
	n.mu.Unlock()
}

func starsPayload(quantity int) string {
	raw := fmt.Sprintf("\x00\x00%d Telegram Stars for test", quantity)
	return strings.TrimRight(base64.StdEncoding.EncodeToString([]byte(raw)), "=")
}

func testHash() string {
	return strings.Repeat("ab", 32)
}

func newTestService(t *testing.T, broker *stubBroker, submitter *stubSubmitter, ledger *memLedger, verifier IdentityVerifier, notifier Notifier) *Service {
	t.Helper()
	svc, err := New(Config{MinStars: 50, MaxStars: 1_000_000}, Dependencies{
		Broker:    broker,
		Memos:     memosvc.NewDecoder(nil),
		Submitter: submitter,
		Ledger:    ledger,
		Verifier:  verifier,
		Notifier:  notifier,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestBuyFullPipeline(t *testing.T) {
	broker := &stubBroker{
		recipientToken: "tok1",
		reqID:          "r1",
		params: fragment.TransactionParams{
			Address:    "EQDestination",
			AmountNano: 500_000_000,
			Payload:    starsPayload(100),
		},
	}
	submitter := &stubSubmitter{hash: testHash()}
	ledger := newMemLedger()
	notifier := &recordingNotifier{}

	svc := newTestService(t, broker, submitter, ledger, nil, notifier)

	result, err := svc.Buy(context.Background(), BuyRequest{
		Username: "@alice",
		Quantity: 100,
	})
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if !result.Success {
		t.Fatalf("result not successful: %+v", result)
	}
	if result.Recipient != "alice" {
		t.Fatalf("recipient = %q, want alice", result.Recipient)
	}
	if submitter.lastAmount != 0.5 {
		t.Fatalf("submitted amount = %v TON, want 0.5", submitter.lastAmount)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(result.TxHash) {
		t.Fatalf("tx hash = %q, want 64 hex chars", result.TxHash)
	}
	if result.TxLink != "https://tonviewer.com/transaction/"+result.TxHash {
		t.Fatalf("tx link = %q", result.TxLink)
	}
	if !strings.HasPrefix(result.Memo, "100 Telegram Stars") {
		t.Fatalf("memo = %q", result.Memo)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.notes) != 1 || notifier.notes[0].TxHash != result.TxHash {
		t.Fatalf("notification not sent: %+v", notifier.notes)
	}
}

func TestBuyRejectsQuantityBelowMinimumWithoutBrokerCalls(t *testing.T) {
	broker := &stubBroker{}
	submitter := &stubSubmitter{hash: testHash()}
	svc := newTestService(t, broker, submitter, newMemLedger(), nil, nil)

	_, err := svc.Buy(context.Background(), BuyRequest{Username: "alice", Quantity: 10})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	resolve, init, params := broker.calls()
	if resolve+init+params != 0 {
		t.Fatalf("broker touched on invalid quantity: %d/%d/%d", resolve, init, params)
	}
	if submitter.calls != 0 {
		t.Fatalf("submitter touched on invalid quantity")
	}
}

func TestBuyReplaysSucceededKeyWithoutSideEffects(t *testing.T) {
	broker := &stubBroker{
		recipientToken: "tok1",
		reqID:          "r1",
		params: fragment.TransactionParams{
			Address:    "EQDestination",
			AmountNano: 700_000_000,
			Payload:    starsPayload(100),
		},
	}
	submitter := &stubSubmitter{hash: testHash()}
	ledger := newMemLedger()
	svc := newTestService(t, broker, submitter, ledger, nil, nil)

	req := BuyRequest{Username: "alice", Quantity: 100, IdempotencyKey: "key-1"}

	first, err := svc.Buy(context.Background(), req)
	if err != nil {
		t.Fatalf("first Buy: %v", err)
	}
	if !first.Success {
		t.Fatalf("first purchase failed: %+v", first)
	}

	second, err := svc.Buy(context.Background(), req)
	if err != nil {
		t.Fatalf("second Buy: %v", err)
	}
	if !second.Success || !second.Replayed {
		t.Fatalf("replay result = %+v, want replayed success", second)
	}
	if second.TxHash != first.TxHash {
		t.Fatalf("replay hash = %q, want %q", second.TxHash, first.TxHash)
	}

	resolve, init, params := broker.calls()
	if resolve != 1 || init != 1 || params != 1 {
		t.Fatalf("broker called again on replay: %d/%d/%d", resolve, init, params)
	}
	if submitter.calls != 1 {
		t.Fatalf("submitter calls = %d, want 1", submitter.calls)
	}
}

func TestBuyConflictsOnPendingKey(t *testing.T) {
	ledger := newMemLedger()
	// Simulate an in-flight request holding the key.
	if _, _, err := ledger.Begin(context.Background(), pgrepo.NewPurchase{
		IdempotencyKey: "key-busy",
		Recipient:      "alice",
		Quantity:       100,
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	svc := newTestService(t, &stubBroker{}, &stubSubmitter{hash: testHash()}, ledger, nil, nil)

	_, err := svc.Buy(context.Background(), BuyRequest{
		Username:       "alice",
		Quantity:       100,
		IdempotencyKey: "key-busy",
	})
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("err = %v, want ErrDuplicatePending", err)
	}
}

func TestBuyRejectsIdentityMismatchBeforeBrokerCall(t *testing.T) {
	broker := &stubBroker{}
	verifier := &stubVerifier{identity: authsvc.Identity{UserID: 42, Username: "bob"}}
	svc := newTestService(t, broker, &stubSubmitter{hash: testHash()}, newMemLedger(), verifier, nil)

	_, err := svc.Buy(context.Background(), BuyRequest{
		Username:       "alice",
		Quantity:       100,
		InitData:       "signed",
		ClaimedBuyerID: 99,
	})
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}

	resolve, init, params := broker.calls()
	if resolve+init+params != 0 {
		t.Fatalf("broker touched on identity mismatch")
	}
}

func TestBuyRequiresInitDataWhenConfigured(t *testing.T) {
	svc, err := New(Config{MinStars: 50, MaxStars: 1_000_000, RequireInitData: true}, Dependencies{
		Broker:    &stubBroker{},
		Submitter: &stubSubmitter{hash: testHash()},
		Ledger:    newMemLedger(),
		Verifier:  &stubVerifier{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = svc.Buy(context.Background(), BuyRequest{Username: "alice", Quantity: 100})
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
}

func TestBuyPersistsBrokerStageFailures(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*stubBroker, *stubSubmitter)
		wantCode string
	}{
		{
			name:     "resolve",
			mutate:   func(b *stubBroker, _ *stubSubmitter) { b.resolveErr = fragment.ErrRecipientNotFound },
			wantCode: CodeRecipientNotFound,
		},
		{
			name:     "init",
			mutate:   func(b *stubBroker, _ *stubSubmitter) { b.initErr = fragment.ErrInitFailed },
			wantCode: CodeBrokerInitFailed,
		},
		{
			name:     "params",
			mutate:   func(b *stubBroker, _ *stubSubmitter) { b.paramsErr = fragment.ErrParamsFailed },
			wantCode: CodeBrokerParamsFailed,
		},
		{
			name:     "broadcast",
			mutate:   func(_ *stubBroker, s *stubSubmitter) { s.err = submitsvc.ErrBroadcastFailed },
			wantCode: CodeBroadcastFailed,
		},
		{
			name:     "wallet init",
			mutate:   func(_ *stubBroker, s *stubSubmitter) { s.err = submitsvc.ErrWalletNotInitialized },
			wantCode: CodeWalletNotInitialized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broker := &stubBroker{
				recipientToken: "tok1",
				reqID:          "r1",
				params: fragment.TransactionParams{
					Address:    "EQDestination",
					AmountNano: 500_000_000,
					Payload:    starsPayload(100),
				},
			}
			submitter := &stubSubmitter{hash: testHash()}
			tc.mutate(broker, submitter)

			ledger := newMemLedger()
			notifier := &recordingNotifier{}
			svc := newTestService(t, broker, submitter, ledger, nil, notifier)

			key := "key-" + tc.name
			result, err := svc.Buy(context.Background(), BuyRequest{
				Username:       "alice",
				Quantity:       100,
				IdempotencyKey: key,
			})
			if err != nil {
				t.Fatalf("Buy: %v", err)
			}
			if result.Success {
				t.Fatalf("expected failed result")
			}
			if result.ErrorCode != tc.wantCode {
				t.Fatalf("error code = %q, want %q", result.ErrorCode, tc.wantCode)
			}

			ledger.mu.Lock()
			record := ledger.records[key]
			ledger.mu.Unlock()
			if record.Status != "failed" {
				t.Fatalf("ledger status = %q, want failed", record.Status)
			}

			notifier.mu.Lock()
			defer notifier.mu.Unlock()
			if len(notifier.notes) != 0 {
				t.Fatalf("notification sent for failed purchase")
			}
		})
	}
}

func TestCheckRecipientReportsUnknownUserWithoutError(t *testing.T) {
	broker := &stubBroker{profileErr: fragment.ErrRecipientNotFound}
	svc := newTestService(t, broker, &stubSubmitter{hash: testHash()}, newMemLedger(), nil, nil)

	result, err := svc.CheckRecipient(context.Background(), "@ghost", 0, "203.0.113.9")
	if err != nil {
		t.Fatalf("CheckRecipient: %v", err)
	}
	if result.Found {
		t.Fatalf("unknown recipient reported as found")
	}
}

func TestCheckRecipientReturnsProfile(t *testing.T) {
	broker := &stubBroker{profile: fragment.Profile{
		Username:  "alice",
		FirstName: "Alice",
		IsPremium: true,
	}}
	svc := newTestService(t, broker, &stubSubmitter{hash: testHash()}, newMemLedger(), nil, nil)

	result, err := svc.CheckRecipient(context.Background(), "alice", 0, "")
	if err != nil {
		t.Fatalf("CheckRecipient: %v", err)
	}
	if !result.Found || result.Username != "alice" || !result.IsPremium {
		t.Fatalf("profile result = %+v", result)
	}
}

func TestHistoryRequiresVerifiedIdentity(t *testing.T) {
	verifier := &stubVerifier{err: authsvc.ErrNoIdentity}
	svc := newTestService(t, &stubBroker{}, &stubSubmitter{hash: testHash()}, newMemLedger(), verifier, nil)

	if _, err := svc.History(context.Background(), "tampered"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
}

func TestHistoryListsBuyerPurchases(t *testing.T) {
	ledger := newMemLedger()
	buyer := int64(42)
	if _, _, err := ledger.Begin(context.Background(), pgrepo.NewPurchase{
		IdempotencyKey: "key-h1",
		BuyerID:        &buyer,
		Recipient:      "alice",
		Quantity:       100,
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	verifier := &stubVerifier{identity: authsvc.Identity{UserID: 42}}
	svc := newTestService(t, &stubBroker{}, &stubSubmitter{hash: testHash()}, ledger, verifier, nil)

	records, err := svc.History(context.Background(), "signed")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 || records[0].Recipient != "alice" {
		t.Fatalf("history = %+v", records)
	}
}
