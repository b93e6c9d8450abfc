// Package botapp runs the shop's Telegram bot: the /start entry point
// into the Mini App and a purchase history command.
package botapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nyckye/starshop/backend/internal/config"
	"github.com/nyckye/starshop/backend/internal/domain/enums"
	tginfra "github.com/nyckye/starshop/backend/internal/infra/telegram"
	pgrepo "github.com/nyckye/starshop/backend/internal/repo/postgres"
)

type App struct {
	cfg          config.Config
	logger       *zap.Logger
	postgres     *pgxpool.Pool
	bot          *tginfra.Bot
	purchaseRepo *pgrepo.PurchaseRepo
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for bot app: %w", err)
	}

	bot, err := tginfra.NewBot(cfg.Bot.Token)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	return &App{
		cfg:          cfg,
		logger:       logger,
		postgres:     pool,
		bot:          bot,
		purchaseRepo: pgrepo.NewPurchaseRepo(pool),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot started", zap.String("username", a.bot.Username()))

	return a.bot.Listen(ctx, tginfra.Handlers{
		OnCommand: a.handleCommand,
		OnText:    a.handleText,
	})
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
}

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	switch update.Command {
	case "start":
		a.sendStart(ctx, update.ChatID)
	case "history":
		a.sendHistory(ctx, update.ChatID, update.UserID)
	case "help":
		a.sendHelp(ctx, update.ChatID)
	default:
		a.reply(ctx, update.ChatID, "Unknown command. Try /start, /history or /help.")
	}
	return nil
}

func (a *App) handleText(ctx context.Context, update tginfra.TextUpdate) error {
	a.sendStart(ctx, update.ChatID)
	return nil
}

func (a *App) sendStart(ctx context.Context, chatID int64) {
	text := "⭐ <b>Telegram Stars Shop</b>\n\n" +
		"Buy stars for yourself or send them as a gift.\n" +
		"Open the shop to get started."

	buttons := []tginfra.Button{}
	if a.cfg.Bot.WebAppURL != "" {
		buttons = append(buttons, tginfra.Button{Text: "🛒 Open shop", WebApp: a.cfg.Bot.WebAppURL})
	}
	if a.cfg.Bot.SupportURL != "" {
		buttons = append(buttons, tginfra.Button{Text: "Support", URL: a.cfg.Bot.SupportURL})
	}

	if err := a.bot.SendHTML(ctx, chatID, text, buttons); err != nil {
		a.logger.Warn("send start message", zap.Error(err))
	}
}

func (a *App) sendHistory(ctx context.Context, chatID, userID int64) {
	limit := a.cfg.Limits.HistoryLimit
	if limit <= 0 || limit > 10 {
		limit = 10
	}

	records, err := a.purchaseRepo.ListByBuyer(ctx, userID, limit)
	if err != nil {
		a.logger.Warn("load purchase history", zap.Int64("user_id", userID), zap.Error(err))
		a.reply(ctx, chatID, "Could not load your history right now, try again later.")
		return
	}
	if len(records) == 0 {
		a.reply(ctx, chatID, "You have no purchases yet. Open the shop with /start.")
		return
	}

	var b strings.Builder
	b.WriteString("<b>Your recent purchases</b>\n\n")
	for _, record := range records {
		icon := "⏳"
		switch enums.PurchaseStatus(record.Status) {
		case enums.PurchaseStatusSuccess:
			icon = "✅"
		case enums.PurchaseStatusFailed:
			icon = "❌"
		}
		fmt.Fprintf(&b, "%s %d ⭐ → @%s on %s\n",
			icon, record.Quantity, record.Recipient, record.CreatedAt.Format("02 Jan 2006"))
	}

	if err := a.bot.SendHTML(ctx, chatID, b.String(), nil); err != nil {
		a.logger.Warn("send history message", zap.Error(err))
	}
}

func (a *App) sendHelp(ctx context.Context, chatID int64) {
	a.reply(ctx, chatID,
		"/start — open the stars shop\n"+
			"/history — your recent purchases\n"+
			"/help — this message")
}

func (a *App) reply(ctx context.Context, chatID int64, text string) {
	if err := a.bot.SendText(ctx, chatID, text); err != nil {
		a.logger.Warn("send reply", zap.Error(err))
	}
}
