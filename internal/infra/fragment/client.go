package fragment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyckye/starshop/backend/internal/domain/enums"
	"github.com/nyckye/starshop/backend/internal/infra/httpclient"
)

const defaultBaseURL = "https://fragment.com/api"

var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrInitFailed        = errors.New("buy request init failed")
	ErrParamsFailed      = errors.New("transaction params unavailable")
)

type Config struct {
	BaseURL         string
	Hash            string
	StelSSID        string
	StelDT          string
	StelTONToken    string
	StelToken       string
	Address         string
	PublicKey       string
	WalletStateInit string
	LookupTimeout   time.Duration
	BuyLinkTimeout  time.Duration
}

// Client chains the three Fragment calls that turn a recipient handle into
// on-chain transfer parameters. None of the calls is retried: init reserves
// a purchase on the broker side, so a blind retry risks double-reservation.
type Client struct {
	cfg           Config
	lookupClient  *http.Client
	buyLinkClient *http.Client
	logger        *zap.Logger
}

type Profile struct {
	Username  string
	Recipient string
	UserID    int64
	FirstName string
	LastName  string
	PhotoURL  string
	IsPremium bool
}

type TransactionParams struct {
	Address    string
	AmountNano int64
	Payload    string
}

func (p TransactionParams) Complete() bool {
	return p.Address != "" && p.AmountNano > 0 && p.Payload != ""
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	if cfg.BuyLinkTimeout <= 0 {
		cfg.BuyLinkTimeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		cfg:           cfg,
		lookupClient:  httpclient.New(cfg.LookupTimeout),
		buyLinkClient: httpclient.New(cfg.BuyLinkTimeout),
		logger:        log,
	}
}

// ResolveRecipient strips a leading "@" and asks Fragment for the opaque
// recipient token used by the purchase flow.
func (c *Client) ResolveRecipient(ctx context.Context, query string) (string, error) {
	found, err := c.search(ctx, query)
	if err != nil {
		return "", err
	}

	recipient, _ := found["recipient"].(string)
	if recipient == "" {
		c.logger.Info("fragment recipient not found", zap.String("query", normalizeQuery(query)))
		return "", fmt.Errorf("no recipient token for %q: %w", normalizeQuery(query), ErrRecipientNotFound)
	}
	return recipient, nil
}

// FetchProfile returns the public profile Fragment exposes for a handle.
// The avatar URL is embedded in an HTML img tag and has to be cut out.
func (c *Client) FetchProfile(ctx context.Context, query string) (Profile, error) {
	found, err := c.search(ctx, query)
	if err != nil {
		return Profile{}, err
	}

	profile := Profile{Username: normalizeQuery(query)}
	profile.Recipient, _ = found["recipient"].(string)
	if profile.Recipient == "" {
		return Profile{}, fmt.Errorf("no profile for %q: %w", profile.Username, ErrRecipientNotFound)
	}

	profile.UserID = asInt64(firstPresent(found, "user_id", "id"))
	profile.FirstName = asString(firstPresent(found, "name", "first_name", "firstName"))
	profile.LastName = asString(firstPresent(found, "last_name", "lastName"))
	profile.IsPremium = asBool(firstPresent(found, "is_premium", "isPremium"))
	if photoHTML, _ := found["photo"].(string); photoHTML != "" {
		profile.PhotoURL = extractImgSrc(photoHTML)
	}

	return profile, nil
}

// InitPurchase reserves a purchase of quantity stars for the recipient token
// and returns the broker's request id for it.
func (c *Client) InitPurchase(ctx context.Context, recipient string, quantity int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	body, err := c.postForm(ctx, c.lookupClient, url.Values{
		"recipient": {recipient},
		"quantity":  {strconv.Itoa(quantity)},
		"method":    {enums.BrokerMethodInitBuyRequest.String()},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("init buy request: %w", errors.Join(ErrInitFailed, err))
	}

	var parsed struct {
		ReqID string `json:"req_id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode init response: %w", errors.Join(ErrInitFailed, err))
	}
	if parsed.ReqID == "" {
		return "", fmt.Errorf("no req_id in init response: %w", ErrInitFailed)
	}
	return parsed.ReqID, nil
}

// FetchParams asks for the buy link, posing as the configured wallet, and
// extracts the first transfer message. Fragment keeps init and buy-link as
// two steps so it can quote a price before commitment; callers must not
// collapse or reorder them.
func (c *Client) FetchParams(ctx context.Context, recipient, reqID string, quantity int) (TransactionParams, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.BuyLinkTimeout)
	defer cancel()

	form := url.Values{
		"address":            {c.cfg.Address},
		"chain":              {"-239"},
		"walletStateInit":    {c.cfg.WalletStateInit},
		"publicKey":          {c.cfg.PublicKey},
		"features":           {"SendTransaction", `{"name":"SendTransaction","maxMessages":255}`},
		"maxProtocolVersion": {"2"},
		"platform":           {"iphone"},
		"appName":            {"Tonkeeper"},
		"appVersion":         {"5.0.14"},
		"transaction":        {"1"},
		"id":                 {reqID},
		"show_sender":        {"0"},
		"method":             {enums.BrokerMethodGetBuyLink.String()},
	}
	headers := map[string]string{
		"accept":           "application/json, text/javascript, */*; q=0.01",
		"origin":           "https://fragment.com",
		"referer":          fmt.Sprintf("https://fragment.com/stars/buy?recipient=%s&quantity=%d", recipient, quantity),
		"user-agent":       "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
		"x-requested-with": "XMLHttpRequest",
	}

	body, err := c.postForm(ctx, c.buyLinkClient, form, headers)
	if err != nil {
		return TransactionParams{}, fmt.Errorf("get buy link: %w", errors.Join(ErrParamsFailed, err))
	}

	var parsed struct {
		OK          bool `json:"ok"`
		Transaction struct {
			Messages []struct {
				Address string    `json:"address"`
				Amount  nanoValue `json:"amount"`
				Payload string    `json:"payload"`
			} `json:"messages"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TransactionParams{}, fmt.Errorf("decode buy link response: %w", errors.Join(ErrParamsFailed, err))
	}
	if !parsed.OK || len(parsed.Transaction.Messages) == 0 {
		return TransactionParams{}, fmt.Errorf("no transaction messages in buy link response: %w", ErrParamsFailed)
	}

	first := parsed.Transaction.Messages[0]
	params := TransactionParams{
		Address:    first.Address,
		AmountNano: int64(first.Amount),
		Payload:    first.Payload,
	}
	if !params.Complete() {
		return TransactionParams{}, fmt.Errorf("incomplete transaction params: %w", ErrParamsFailed)
	}
	return params, nil
}

func (c *Client) search(ctx context.Context, query string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	body, err := c.postForm(ctx, c.lookupClient, url.Values{
		"query":  {normalizeQuery(query)},
		"method": {enums.BrokerMethodSearchRecipient.String()},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("search recipient: %w", errors.Join(ErrRecipientNotFound, err))
	}

	var parsed struct {
		Found map[string]any `json:"found"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", errors.Join(ErrRecipientNotFound, err))
	}
	if len(parsed.Found) == 0 {
		return nil, fmt.Errorf("empty search result: %w", ErrRecipientNotFound)
	}
	return parsed.Found, nil
}

func (c *Client) postForm(ctx context.Context, client *http.Client, form url.Values, headers map[string]string) ([]byte, error) {
	endpoint := c.cfg.BaseURL + "?hash=" + url.QueryEscape(c.cfg.Hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build fragment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, cookie := range c.cookies() {
		req.AddCookie(cookie)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fragment request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fragment status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read fragment response: %w", err)
	}
	return body, nil
}

func (c *Client) cookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: "stel_ssid", Value: c.cfg.StelSSID},
		{Name: "stel_dt", Value: c.cfg.StelDT},
		{Name: "stel_ton_token", Value: c.cfg.StelTONToken},
		{Name: "stel_token", Value: c.cfg.StelToken},
	}
}

// nanoValue tolerates the amount arriving either as a JSON number or as a
// quoted decimal string, which is what Fragment actually sends.
type nanoValue int64

func (n *nanoValue) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*n = 0
		return nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse nano amount %q: %w", raw, err)
	}
	*n = nanoValue(parsed)
	return nil
}

func normalizeQuery(query string) string {
	return strings.TrimPrefix(strings.TrimSpace(query), "@")
}

func extractImgSrc(html string) string {
	start := strings.Index(html, `src="`)
	if start < 0 {
		return ""
	}
	start += len(`src="`)
	end := strings.Index(html[start:], `"`)
	if end < 0 {
		return ""
	}
	return html[start : start+end]
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
