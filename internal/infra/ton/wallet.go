package ton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyckye/starshop/backend/internal/infra/httpclient"
)

// Client talks to the external wallet signer daemon. The daemon owns the
// keys and seqno state derived from the mnemonic; this process never signs
// anything itself.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

type Config struct {
	Endpoint string
	APIKey   string
	Mnemonic []string
	Timeout  time.Duration
}

type transferRequest struct {
	Destination string  `json:"destination"`
	AmountTON   float64 `json:"amount_ton"`
	Comment     string  `json:"comment"`
}

type transferResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error"`
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpclient.New(cfg.Timeout),
		logger:     log,
	}
}

// Init hands the mnemonic to the signer daemon so it can derive the wallet.
// The mnemonic is never logged.
func (c *Client) Init(ctx context.Context) error {
	if len(c.cfg.Mnemonic) == 0 {
		return fmt.Errorf("wallet mnemonic is empty")
	}

	payload := map[string]any{
		"api_key":  c.cfg.APIKey,
		"mnemonic": c.cfg.Mnemonic,
		"testnet":  false,
	}
	var parsed struct {
		Address string `json:"address"`
		Error   string `json:"error"`
	}
	if err := c.postJSON(ctx, "/v1/wallet/init", payload, &parsed); err != nil {
		return fmt.Errorf("init wallet: %w", err)
	}
	if parsed.Error != "" {
		return fmt.Errorf("init wallet: signer rejected: %s", parsed.Error)
	}

	c.logger.Info("ton wallet initialized", zap.String("address", parsed.Address))
	return nil
}

// Transfer signs and broadcasts one transfer and returns the tx hash in hex.
// The signer reads the wallet's current seqno for each call, so callers are
// responsible for not issuing concurrent transfers.
func (c *Client) Transfer(ctx context.Context, destination string, amountTON float64, comment string) (string, error) {
	var parsed transferResponse
	err := c.postJSON(ctx, "/v1/wallet/transfer", transferRequest{
		Destination: destination,
		AmountTON:   amountTON,
		Comment:     comment,
	}, &parsed)
	if err != nil {
		return "", fmt.Errorf("transfer: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("transfer: signer rejected: %s", parsed.Error)
	}
	if parsed.TxHash == "" {
		return "", fmt.Errorf("transfer: signer returned no tx hash")
	}
	return strings.ToLower(parsed.TxHash), nil
}

// Balance returns the wallet balance in TON.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/v1/wallet/balance", nil)
	if err != nil {
		return 0, fmt.Errorf("build balance request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("balance request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("balance: signer status %d", resp.StatusCode)
	}

	var parsed struct {
		BalanceNano int64 `json:"balance_nano"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode balance response: %w", err)
	}
	return float64(parsed.BalanceNano) / 1_000_000_000, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal signer payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build signer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signer request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signer status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(target); err != nil {
		return fmt.Errorf("decode signer response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
