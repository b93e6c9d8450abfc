package fragment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := New(Config{
		BaseURL:         srv.URL,
		Hash:            "test-hash",
		StelSSID:        "ssid",
		StelToken:       "token",
		Address:         "0:wallet",
		PublicKey:       "pubkey",
		WalletStateInit: "state-init",
	}, nil)
	return client, srv
}

func TestResolveRecipientStripsAtAndExtractsToken(t *testing.T) {
	var gotQuery, gotMethod string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotQuery = r.PostForm.Get("query")
		gotMethod = r.PostForm.Get("method")
		if c, err := r.Cookie("stel_token"); err != nil || c.Value != "token" {
			t.Fatalf("missing stel_token cookie")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"found": map[string]any{"recipient": "tok1"},
		})
	})

	token, err := client.ResolveRecipient(context.Background(), "@alice")
	if err != nil {
		t.Fatalf("resolve recipient: %v", err)
	}
	if token != "tok1" {
		t.Fatalf("unexpected recipient token: %q", token)
	}
	if gotQuery != "alice" {
		t.Fatalf("leading @ must be stripped, got query %q", gotQuery)
	}
	if gotMethod != "searchStarsRecipient" {
		t.Fatalf("unexpected method %q", gotMethod)
	}
}

func TestResolveRecipientNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"found": map[string]any{}})
	})

	_, err := client.ResolveRecipient(context.Background(), "nobody")
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
}

func TestResolveRecipientServerErrorMapsToNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ResolveRecipient(context.Background(), "alice")
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound on 502, got %v", err)
	}
}

func TestFetchProfileParsesPhotoAndPremium(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"found": map[string]any{
				"recipient":  "tok1",
				"name":       "Alice",
				"photo":      `<img src="https://cdn.example/a.jpg" />`,
				"is_premium": true,
				"id":         float64(777),
			},
		})
	})

	profile, err := client.FetchProfile(context.Background(), "@alice")
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if profile.Username != "alice" || profile.Recipient != "tok1" {
		t.Fatalf("unexpected profile identity: %+v", profile)
	}
	if profile.PhotoURL != "https://cdn.example/a.jpg" {
		t.Fatalf("unexpected photo url: %q", profile.PhotoURL)
	}
	if !profile.IsPremium || profile.FirstName != "Alice" || profile.UserID != 777 {
		t.Fatalf("unexpected profile fields: %+v", profile)
	}
}

func TestInitPurchaseReturnsReqID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("recipient") != "tok1" || r.PostForm.Get("quantity") != "100" {
			t.Fatalf("unexpected init form: %v", r.PostForm)
		}
		if r.PostForm.Get("method") != "initBuyStarsRequest" {
			t.Fatalf("unexpected method %q", r.PostForm.Get("method"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"req_id": "r1"})
	})

	reqID, err := client.InitPurchase(context.Background(), "tok1", 100)
	if err != nil {
		t.Fatalf("init purchase: %v", err)
	}
	if reqID != "r1" {
		t.Fatalf("unexpected req id: %q", reqID)
	}
}

func TestInitPurchaseMissingReqID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "sold out"})
	})

	_, err := client.InitPurchase(context.Background(), "tok1", 100)
	if !errors.Is(err, ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", err)
	}
}

func TestFetchParamsExtractsFirstMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("method") != "getBuyStarsLink" {
			t.Fatalf("unexpected method %q", r.PostForm.Get("method"))
		}
		if r.PostForm.Get("id") != "r1" || r.PostForm.Get("chain") != "-239" {
			t.Fatalf("unexpected buy link form: %v", r.PostForm)
		}
		if r.PostForm.Get("walletStateInit") != "state-init" || r.PostForm.Get("publicKey") != "pubkey" {
			t.Fatalf("wallet identity envelope missing: %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"transaction": map[string]any{
				"messages": []map[string]any{
					{"address": "EQtest", "amount": "500000000", "payload": "dGVzdA"},
				},
			},
		})
	})

	params, err := client.FetchParams(context.Background(), "tok1", "r1", 100)
	if err != nil {
		t.Fatalf("fetch params: %v", err)
	}
	if params.Address != "EQtest" || params.AmountNano != 500000000 || params.Payload != "dGVzdA" {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestFetchParamsRejectsEmptyMessages(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          true,
			"transaction": map[string]any{"messages": []map[string]any{}},
		})
	})

	_, err := client.FetchParams(context.Background(), "tok1", "r1", 100)
	if !errors.Is(err, ErrParamsFailed) {
		t.Fatalf("expected ErrParamsFailed, got %v", err)
	}
}
