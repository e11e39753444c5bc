package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/flowdesk/internal/workflow"
	"go.uber.org/zap"
)

const historyLimit = 5

type TelegramGateway struct {
	Bot     *tgbotapi.BotAPI
	Runner  Runner
	History HistoryLister // optional, backs /history
	Logger  *zap.Logger
}

func NewTelegramGateway(token string, runner Runner, history HistoryLister, logger *zap.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegramGateway(bot, runner, history, logger), nil
}

func newTelegramGateway(bot *tgbotapi.BotAPI, runner Runner, history HistoryLister, logger *zap.Logger) *TelegramGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram gateway authorized", zap.String("account", bot.Self.UserName))
	return &TelegramGateway{
		Bot:     bot,
		Runner:  runner,
		History: history,
		Logger:  logger,
	}
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			response := tg.handle(ctx, update.Message)
			if response == "" {
				continue
			}
			if _, err := tg.Bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, response)); err != nil {
				tg.Logger.Warn("failed to send reply", zap.Int64("chat_id", update.Message.Chat.ID), zap.Error(err))
			}
		}
	}
}

// handle turns one inbound message into the reply text.
func (tg *TelegramGateway) handle(ctx context.Context, msg *tgbotapi.Message) string {
	identity := identityOf(msg)
	text := strings.TrimSpace(msg.Text)
	tg.Logger.Info("request received", zap.String("identity", identity), zap.Int("chars", len(text)))

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			return "Tell me what you need done across your connected apps, e.g. \"summarise today's new leads and post them to #sales\". Use /history to see your recent requests."
		case "history":
			return tg.history(ctx, identity)
		default:
			return fmt.Sprintf("Unknown command /%s.", msg.Command())
		}
	}
	if text == "" {
		return ""
	}

	report, err := tg.Runner.Run(ctx, text, identity)
	if err != nil {
		tg.Logger.Error("run failed", zap.String("identity", identity), zap.Error(err))
		return workflow.UserMessage(err)
	}
	return report
}

func (tg *TelegramGateway) history(ctx context.Context, identity string) string {
	if tg.History == nil {
		return "Run history is not enabled."
	}
	runs, err := tg.History.Recent(ctx, identity, historyLimit)
	if err != nil {
		tg.Logger.Error("failed to load history", zap.String("identity", identity), zap.Error(err))
		return "Sorry, I couldn't load your history right now."
	}
	if len(runs) == 0 {
		return "You have no runs yet."
	}

	var sb strings.Builder
	sb.WriteString("Your recent requests:\n")
	for _, r := range runs {
		fmt.Fprintf(&sb, "\n%s [%s] %s", r.FinishedAt.Format("2006-01-02 15:04"), r.Status, r.Request)
	}
	return sb.String()
}

// identityOf returns the chat id, which is also the Send target, so runs,
// history and replies all share one key.
func identityOf(msg *tgbotapi.Message) string {
	return strconv.FormatInt(msg.Chat.ID, 10)
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	_, err = tg.Bot.Send(tgbotapi.NewMessage(id, text))
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
