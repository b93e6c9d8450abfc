package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nyckye/starshop/backend/internal/infra/telegram"
)

type sentMessage struct {
	chatID  int64
	text    string
	buttons []telegram.Button
}

type stubSender struct {
	sent chan sentMessage
	err  error
}

func newStubSender() *stubSender {
	return &stubSender{sent: make(chan sentMessage, 4)}
}

func (s *stubSender) SendHTML(ctx context.Context, chatID int64, text string, buttons []telegram.Button) error {
	s.sent <- sentMessage{chatID: chatID, text: text, buttons: buttons}
	return s.err
}

func (s *stubSender) wait(t *testing.T) sentMessage {
	t.Helper()
	select {
	case msg := <-s.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
		return sentMessage{}
	}
}

func TestPurchaseCompletedNotifiesAdminAndBuyer(t *testing.T) {
	sender := newStubSender()
	svc := New(Dependencies{Sender: sender, AdminChatID: 777})

	svc.PurchaseCompleted(PurchaseNote{
		BuyerID:       123,
		BuyerUsername: "bob",
		Recipient:     "alice",
		Quantity:      100,
		AmountTON:     0.7,
		TxHash:        strings.Repeat("ab", 32),
		TxLink:        "https://tonviewer.com/transaction/" + strings.Repeat("ab", 32),
	})

	admin := sender.wait(t)
	if admin.chatID != 777 {
		t.Fatalf("first message chat = %d, want admin 777", admin.chatID)
	}
	if !strings.Contains(admin.text, "@alice") || !strings.Contains(admin.text, "100") {
		t.Fatalf("admin message missing purchase details: %q", admin.text)
	}
	if len(admin.buttons) != 1 || admin.buttons[0].URL == "" {
		t.Fatalf("admin message missing tx link button: %+v", admin.buttons)
	}

	buyer := sender.wait(t)
	if buyer.chatID != 123 {
		t.Fatalf("second message chat = %d, want buyer 123", buyer.chatID)
	}
	if !strings.Contains(buyer.text, "100 stars") {
		t.Fatalf("buyer message missing quantity: %q", buyer.text)
	}
}

func TestPurchaseCompletedSkipsUnknownBuyer(t *testing.T) {
	sender := newStubSender()
	svc := New(Dependencies{Sender: sender, AdminChatID: 777})

	svc.PurchaseCompleted(PurchaseNote{Recipient: "alice", Quantity: 50})

	sender.wait(t)
	select {
	case msg := <-sender.sent:
		t.Fatalf("unexpected second message to chat %d", msg.chatID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPurchaseCompletedSwallowsSendFailures(t *testing.T) {
	sender := newStubSender()
	sender.err = errors.New("blocked by user")
	svc := New(Dependencies{Sender: sender, AdminChatID: 777})

	// Must not panic or propagate anything.
	svc.PurchaseCompleted(PurchaseNote{BuyerID: 5, Recipient: "alice", Quantity: 50})
	sender.wait(t)
	sender.wait(t)
}
