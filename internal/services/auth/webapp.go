package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoIdentity is the single failure mode of init data verification.
// Callers treat it as "unauthenticated", never as a fatal condition.
var ErrNoIdentity = errors.New("no verified identity")

const webAppSecretLabel = "WebAppData"

type Identity struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	AuthDate  time.Time
	QueryID   string
}

// WebAppVerifier checks the signature Telegram attaches to Mini App init
// data. The secret key is derived once from the bot token and must never
// be logged.
type WebAppVerifier struct {
	secret []byte
}

func NewWebAppVerifier(botToken string) *WebAppVerifier {
	mac := hmac.New(sha256.New, []byte(webAppSecretLabel))
	mac.Write([]byte(botToken))
	return &WebAppVerifier{secret: mac.Sum(nil)}
}

// Verify recomputes the checksum over every init data field except "hash",
// joined as sorted key=value lines, and compares it in constant time with
// the supplied one. On success the embedded user payload becomes the
// trusted identity.
func (v *WebAppVerifier) Verify(initData string) (Identity, error) {
	initData = strings.TrimSpace(initData)
	if initData == "" {
		return Identity{}, fmt.Errorf("empty init data: %w", ErrNoIdentity)
	}

	fields, err := url.ParseQuery(initData)
	if err != nil {
		return Identity{}, fmt.Errorf("parse init data: %w", ErrNoIdentity)
	}

	suppliedHash := fields.Get("hash")
	if suppliedHash == "" {
		return Identity{}, fmt.Errorf("init data has no hash field: %w", ErrNoIdentity)
	}
	fields.Del("hash")

	if !hmac.Equal([]byte(v.checksum(fields)), []byte(suppliedHash)) {
		return Identity{}, fmt.Errorf("init data checksum mismatch: %w", ErrNoIdentity)
	}

	identity, err := identityFromFields(fields)
	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}

func (v *WebAppVerifier) checksum(fields url.Values) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+fields.Get(key))
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func identityFromFields(fields url.Values) (Identity, error) {
	rawUser := fields.Get("user")
	if rawUser == "" {
		return Identity{}, fmt.Errorf("init data has no user payload: %w", ErrNoIdentity)
	}

	var payload struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.Unmarshal([]byte(rawUser), &payload); err != nil || payload.ID <= 0 {
		return Identity{}, fmt.Errorf("malformed user payload: %w", ErrNoIdentity)
	}

	identity := Identity{
		UserID:    payload.ID,
		Username:  payload.Username,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		QueryID:   fields.Get("query_id"),
	}
	if rawDate := fields.Get("auth_date"); rawDate != "" {
		if unix, err := strconv.ParseInt(rawDate, 10, 64); err == nil && unix > 0 {
			identity.AuthDate = time.Unix(unix, 0).UTC()
		}
	}
	return identity, nil
}
