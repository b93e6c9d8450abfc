// Package notify pushes purchase outcomes to Telegram chats. Delivery
// is fire-and-forget; a failed notification never changes a purchase's
// recorded status.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyckye/starshop/backend/internal/infra/telegram"
)

type Sender interface {
	SendHTML(ctx context.Context, chatID int64, text string, buttons []telegram.Button) error
}

type PurchaseNote struct {
	BuyerID       int64
	BuyerUsername string
	Recipient     string
	Quantity      int64
	AmountTON     float64
	TxHash        string
	TxLink        string
}

type Service struct {
	sender      Sender
	adminChatID int64
	logger      *zap.Logger
	timeout     time.Duration
}

type Dependencies struct {
	Sender      Sender
	AdminChatID int64
	Logger      *zap.Logger
}

func New(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sender:      deps.Sender,
		adminChatID: deps.AdminChatID,
		logger:      logger,
		timeout:     10 * time.Second,
	}
}

// PurchaseCompleted notifies the admin chat and, when known, the buyer.
// It returns immediately; sends run in the background and only log on
// failure.
func (s *Service) PurchaseCompleted(note PurchaseNote) {
	if s == nil || s.sender == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if s.adminChatID != 0 {
			if err := s.sender.SendHTML(ctx, s.adminChatID, adminMessage(note), txButtons(note)); err != nil {
				s.logger.Warn("admin purchase notification failed", zap.Error(err))
			}
		}

		if note.BuyerID > 0 {
			if err := s.sender.SendHTML(ctx, note.BuyerID, buyerMessage(note), txButtons(note)); err != nil {
				s.logger.Warn("buyer purchase notification failed",
					zap.Int64("buyer_id", note.BuyerID),
					zap.Error(err))
			}
		}
	}()
}

func adminMessage(note PurchaseNote) string {
	var b strings.Builder
	b.WriteString("<b>New star purchase</b>\n")
	if note.BuyerUsername != "" {
		fmt.Fprintf(&b, "Buyer: @%s\n", note.BuyerUsername)
	} else if note.BuyerID > 0 {
		fmt.Fprintf(&b, "Buyer: id %d\n", note.BuyerID)
	}
	fmt.Fprintf(&b, "Recipient: @%s\n", strings.TrimPrefix(note.Recipient, "@"))
	fmt.Fprintf(&b, "Stars: %d\n", note.Quantity)
	if note.AmountTON > 0 {
		fmt.Fprintf(&b, "Amount: %.4f TON\n", note.AmountTON)
	}
	if note.TxHash != "" {
		fmt.Fprintf(&b, "Tx: <code>%s</code>", note.TxHash)
	}
	return b.String()
}

func buyerMessage(note PurchaseNote) string {
	return fmt.Sprintf(
		"⭐ You sent <b>%d stars</b> to @%s.\nThe transfer is on its way!",
		note.Quantity,
		strings.TrimPrefix(note.Recipient, "@"),
	)
}

func txButtons(note PurchaseNote) []telegram.Button {
	if note.TxLink == "" {
		return nil
	}
	return []telegram.Button{{Text: "View transaction", URL: note.TxLink}}
}
