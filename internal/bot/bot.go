package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gate_bot/internal/broadcast"
	"gate_bot/internal/campaign"
	"gate_bot/internal/config"
	"gate_bot/internal/model"
	"gate_bot/internal/vault"
	"gate_bot/internal/verifier"
)

// Sweeper runs an expiry sweep on demand.
type Sweeper interface {
	Sweep(ctx context.Context) []model.ClosedCampaign
}

type adminMode int

const (
	modeNone adminMode = iota
	modeBroadcast
	modeCreateLink
)

// Deps groups the components the bot drives.
type Deps struct {
	Registry   *campaign.Registry
	Vault      *vault.Vault
	Users      *broadcast.Users
	Verifier   *verifier.Verifier
	Dispatcher *broadcast.Dispatcher
	Oracle     *Oracle
	Messenger  *Messenger
}

// Bot is the Telegram front end: it gates users behind campaign channels,
// hands out vault content and serves the administrator menu.
type Bot struct {
	api         telegramAPI
	botUsername string
	cfg         *config.Config
	registry    *campaign.Registry
	vault       *vault.Vault
	users       *broadcast.Users
	verifier    *verifier.Verifier
	dispatcher  *broadcast.Dispatcher
	oracle      *Oracle
	messenger   *Messenger
	sweeper     Sweeper
	log         *slog.Logger

	modesMu sync.Mutex
	modes   map[int64]adminMode

	// background tracks broadcasts still running.
	background sync.WaitGroup
}

// New creates a Bot on top of api. botUsername is used in share links.
func New(api telegramAPI, botUsername string, cfg *config.Config, deps Deps, log *slog.Logger) *Bot {
	return &Bot{
		api:         api,
		botUsername: botUsername,
		cfg:         cfg,
		registry:    deps.Registry,
		vault:       deps.Vault,
		users:       deps.Users,
		verifier:    deps.Verifier,
		dispatcher:  deps.Dispatcher,
		oracle:      deps.Oracle,
		messenger:   deps.Messenger,
		log:         log,
		modes:       make(map[int64]adminMode),
	}
}

// SetSweeper lets the status screen run a sweep before reporting.
func (b *Bot) SetSweeper(s Sweeper) {
	b.sweeper = s
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
// It returns once running broadcasts have finished.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.background.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || !cb.Message.Chat.IsPrivate() {
			return
		}
		b.users.Touch(ctx, cb.From.ID)
		b.handleCallback(ctx, cb)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	b.users.Touch(ctx, msg.From.ID)
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleMessage(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	userID := msg.From.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID, userID, args)
		return
	case "help":
		b.handleHelp(chatID, userID)
		return
	case "cancel":
		b.setMode(userID, modeNone)
		b.vault.CancelChallenge(userID)
		b.reply(chatID, "Cancelled.")
		return
	}

	if !b.cfg.IsAdmin(userID) {
		if cmd == "admin" {
			b.reply(chatID, "Access denied.")
		}
		return
	}

	switch cmd {
	case "admin":
		b.sendAdminMenu(chatID)
	case "setup":
		b.handleSetup(ctx, chatID, args)
	case "unsetup":
		b.handleUnsetup(ctx, chatID, args)
	case "status":
		b.handleStatus(ctx, chatID)
	case "stats":
		b.handleStats(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if b.cfg.IsAdmin(userID) {
		switch b.takeMode(userID) {
		case modeBroadcast:
			b.handleBroadcastMessage(ctx, chatID, msg)
			return
		case modeCreateLink:
			b.handleCreateLink(ctx, chatID, msg)
			return
		}
	}

	if msg.Text == "" {
		return
	}
	code, ok := b.vault.PendingCode(userID)
	if !ok {
		return
	}
	// The challenge survives an unmet gate so the user can answer after subscribing.
	if missing := b.verifier.Unsatisfied(ctx, userID); len(missing) > 0 {
		b.replyWithMarkup(chatID, subscribePromptText, subscriptionMarkup(missing, code))
		return
	}
	secret := strings.TrimSpace(msg.Text)
	b.resolveContent(ctx, chatID, userID, code, &secret)
}

// NotifyCampaignClosed tells every administrator that a campaign ended.
func (b *Bot) NotifyCampaignClosed(ctx context.Context, c model.ClosedCampaign) {
	title := b.oracle.ChannelTitle(ctx, c.Campaign.ChannelID)
	text := FormatClosure(c, title)
	for _, adminID := range b.cfg.AdminUsers {
		msg := tgbotapi.NewMessage(adminID, text)
		msg.ParseMode = parseModeHTML
		msg.DisableWebPagePreview = true
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("notify admin", "admin_id", adminID, "channel_id", c.Campaign.ChannelID, "error", err)
		}
	}
}

func (b *Bot) setMode(userID int64, m adminMode) {
	b.modesMu.Lock()
	defer b.modesMu.Unlock()
	if m == modeNone {
		delete(b.modes, userID)
		return
	}
	b.modes[userID] = m
}

// takeMode returns and clears the pending mode of userID.
func (b *Bot) takeMode(userID int64) adminMode {
	b.modesMu.Lock()
	defer b.modesMu.Unlock()
	m := b.modes[userID]
	delete(b.modes, userID)
	return m
}

// SendMessage sends a plain text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyHTML(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyWithMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = markup
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// edit replaces the text and keyboard of an existing message. html selects the parse mode.
func (b *Bot) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup, html bool) {
	var msg tgbotapi.EditMessageTextConfig
	if markup != nil {
		msg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		msg = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if html {
		msg.ParseMode = parseModeHTML
	}
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("edit message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}
