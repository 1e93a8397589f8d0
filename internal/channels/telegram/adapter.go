// Package telegram implements the Telegram front channel: a long-polling
// bot that routes inbound chat messages through the turn orchestrator and
// relays each resulting bubble back as a separate reply.
package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/shrimp/shrimp/internal/agent"
	"github.com/shrimp/shrimp/internal/channels"
	"github.com/shrimp/shrimp/pkg/models"
)

// Config holds the Telegram adapter's configuration.
type Config struct {
	// Token is the bot token from @BotFather.
	Token string
	// Model is the LLM model assigned to conversations created from this channel.
	Model string
}

// Adapter long-polls Telegram for inbound messages and drives the turn
// orchestrator for each one.
type Adapter struct {
	cfg          Config
	orchestrator *agent.Orchestrator
	logger       *slog.Logger

	mu        sync.RWMutex
	bot       BotClient
	running   bool
	lastError string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Telegram adapter. The bot client itself is created lazily
// in Start so that a missing/invalid token doesn't fail construction.
func New(cfg Config, orchestrator *agent.Orchestrator, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{cfg: cfg, orchestrator: orchestrator, logger: logger}
}

func (a *Adapter) Name() string { return "telegram" }

// Start begins long-polling in a background goroutine. It returns once the
// bot client has been constructed and registered; Stop cancels the poll loop.
func (a *Adapter) Start(ctx context.Context) error {
	b, err := bot.New(a.cfg.Token, bot.WithDefaultHandler(a.handleUpdate))
	if err != nil {
		a.mu.Lock()
		a.lastError = err.Error()
		a.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.bot = newRealBotClient(b)
	a.cancel = cancel
	a.running = true
	a.lastError = ""
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		b.Start(runCtx)
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()
	return nil
}

func (a *Adapter) Stop() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	return nil
}

func (a *Adapter) Status() channels.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return channels.Status{
		Channel:       a.Name(),
		Running:       a.running,
		Authenticated: a.bot != nil,
		Detail:        a.lastError,
	}
}

// handleUpdate is the bot's default handler; it ignores anything that isn't
// a plain inbound text message, including commands, so slash commands don't
// get routed into the turn orchestrator as ordinary chat.
func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}
	text := update.Message.Text
	if text == "" || text[0] == '/' {
		return
	}

	chatID := update.Message.Chat.ID
	externalChatID := strconv.FormatInt(chatID, 10)

	a.deliver(ctx, externalChatID, chatID, text)
}

func (a *Adapter) deliver(ctx context.Context, externalChatID string, chatID int64, text string) {
	conv, err := a.orchestrator.Store.GetOrCreateChannelConversation(ctx, models.ChannelTelegram, externalChatID, a.cfg.Model)
	if err != nil {
		a.logger.Error("telegram: resolve channel conversation", "error", err)
		return
	}

	result, err := a.orchestrator.RunTurn(ctx, agent.RunTurnInput{
		ConversationID: conv.ID,
		Message:        text,
		Model:          a.cfg.Model,
	}, nil)
	if err != nil {
		a.logger.Error("telegram: run turn", "error", err, "conversationId", conv.ID)
		return
	}

	a.mu.RLock()
	client := a.bot
	a.mu.RUnlock()
	if client == nil {
		return
	}
	for _, bubble := range result.Bubbles {
		if _, err := client.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: bubble}); err != nil {
			a.logger.Error("telegram: send message", "error", err, "chatId", chatID)
		}
	}
}
