package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/shrimp/shrimp/internal/agent"
	"github.com/shrimp/shrimp/internal/channels"
	"github.com/shrimp/shrimp/pkg/models"
)

// Adapter drives a whatsmeow client: it pairs via QR code on first run,
// then routes inbound chat messages through the turn orchestrator and
// relays each resulting bubble back as a separate WhatsApp message.
type Adapter struct {
	cfg          Config
	orchestrator *agent.Orchestrator
	logger       *slog.Logger

	store  *sqlstore.Container
	client *whatsmeow.Client

	// sendFunc delivers one text message to an external chat. It defaults to
	// wrapping the whatsmeow client in Start; tests substitute a fake.
	sendFunc func(ctx context.Context, externalChatID, text string) error

	mu            sync.RWMutex
	running       bool
	authenticated bool
	qrCode        string
	lastError     string

	cancel context.CancelFunc
}

// New constructs a WhatsApp adapter. The whatsmeow client and its session
// store are opened lazily in Start.
func New(cfg Config, orchestrator *agent.Orchestrator, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{cfg: cfg, orchestrator: orchestrator, logger: logger}
}

func (a *Adapter) Name() string { return "whatsapp" }

// Start opens the session store, obtains or restores a device, and connects.
// If no session is paired yet, it begins the QR handshake: the resulting
// codes are exposed through Status until the device authenticates.
func (a *Adapter) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(a.cfg.SessionPath), 0o755); err != nil {
		return fmt.Errorf("whatsapp: create session directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", a.cfg.SessionPath), waLog.Noop)
	if err != nil {
		return fmt.Errorf("whatsapp: open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: load device: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	client := whatsmeow.NewClient(device, waLog.Noop)
	client.AddEventHandler(a.handleEvent)

	a.mu.Lock()
	a.store = container
	a.client = client
	a.sendFunc = func(ctx context.Context, externalChatID, text string) error {
		jid, err := types.ParseJID(externalChatID)
		if err != nil {
			return fmt.Errorf("parse jid %q: %w", externalChatID, err)
		}
		_, err = client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
		return err
	}
	a.cancel = cancel
	a.running = true
	a.authenticated = client.Store.ID != nil
	a.mu.Unlock()

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(runCtx)
		if err != nil {
			return fmt.Errorf("whatsapp: open QR channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
		go a.watchQRChannel(runCtx, qrChan)
		return nil
	}

	return client.Connect()
}

func (a *Adapter) watchQRChannel(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			switch evt.Event {
			case "code":
				a.mu.Lock()
				a.qrCode = evt.Code
				a.mu.Unlock()
			case "success":
				a.mu.Lock()
				a.qrCode = ""
				a.authenticated = true
				a.mu.Unlock()
			}
		}
	}
}

func (a *Adapter) Stop() error {
	a.mu.Lock()
	cancel := a.cancel
	client := a.client
	store := a.store
	a.running = false
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Disconnect()
	}
	if store != nil {
		return store.Close()
	}
	return nil
}

func (a *Adapter) Status() channels.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return channels.Status{
		Channel:       a.Name(),
		Running:       a.running,
		Authenticated: a.authenticated,
		QRCode:        a.qrCode,
		Detail:        a.lastError,
	}
}

func (a *Adapter) handleEvent(evt any) {
	msg, ok := evt.(*events.Message)
	if !ok {
		return
	}
	a.handleMessage(msg)
}

// handleMessage extracts the plain-text body from an inbound WhatsApp
// message event and routes it through the turn orchestrator. Non-text
// message types (images, documents, audio, video) are ignored: Shrimp's
// tool-calling loop only consumes text.
func (a *Adapter) handleMessage(evt *events.Message) {
	if evt.Info.Chat.Server == "broadcast" {
		return
	}

	content := extractText(evt.Message)
	if content == "" {
		return
	}

	externalChatID := evt.Info.Chat.String()
	a.deliver(context.Background(), externalChatID, content)
}

// extractText pulls the plain-text body out of the message types Shrimp
// cares about; image/document/audio/video messages yield no text and are
// ignored, since the tool-calling loop only consumes text.
func extractText(msg *waE2E.Message) string {
	if msg.GetConversation() != "" {
		return msg.GetConversation()
	}
	if msg.GetExtendedTextMessage() != nil {
		return msg.GetExtendedTextMessage().GetText()
	}
	return ""
}

func (a *Adapter) deliver(ctx context.Context, externalChatID, text string) {
	conv, err := a.orchestrator.Store.GetOrCreateChannelConversation(ctx, models.ChannelWhatsApp, externalChatID, a.cfg.Model)
	if err != nil {
		a.logger.Error("whatsapp: resolve channel conversation", "error", err)
		return
	}

	result, err := a.orchestrator.RunTurn(ctx, agent.RunTurnInput{
		ConversationID: conv.ID,
		Message:        text,
		Model:          a.cfg.Model,
	}, nil)
	if err != nil {
		a.logger.Error("whatsapp: run turn", "error", err, "conversationId", conv.ID)
		return
	}

	a.mu.RLock()
	send := a.sendFunc
	a.mu.RUnlock()
	if send == nil {
		return
	}
	for _, bubble := range result.Bubbles {
		if err := send(ctx, externalChatID, bubble); err != nil {
			a.logger.Error("whatsapp: send message", "error", err, "chatId", externalChatID)
		}
	}
}
