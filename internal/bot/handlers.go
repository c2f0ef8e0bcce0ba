package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"gate_bot/internal/apperr"
	"gate_bot/internal/campaign"
	"gate_bot/internal/model"
	"gate_bot/internal/vault"
)

const (
	msgInvalidLink     = "Invalid or expired link."
	msgNeedsPassword   = "This content is password protected.\nEnter the password:"
	msgLocked          = "Too many attempts. Access denied."
	msgDeliveryFailed  = "Failed to send the content."
	msgUnsupported     = "Only text, photos, videos and documents are supported."
	msgEmptyMessage    = "The message is empty."
	msgNoRecipients    = "There are no recipients for the broadcast."
	msgNoCampaigns     = "There are no active campaigns."
	statusConcurrency  = 5
	adminMenuTitle     = "Administrator panel:"
	deletePickerPrompt = "Choose a campaign to delete:"
)

func (b *Bot) handleStart(ctx context.Context, chatID, userID int64, args string) {
	code := ""
	if fields := strings.Fields(args); len(fields) > 0 {
		code = fields[0]
	}
	if code != "" && !vault.ValidCode(code) {
		b.reply(chatID, msgInvalidLink)
		return
	}

	if missing := b.verifier.Unsatisfied(ctx, userID); len(missing) > 0 {
		b.replyWithMarkup(chatID, subscribePromptText, subscriptionMarkup(missing, code))
		return
	}

	if code == "" {
		b.sendWelcome(chatID)
		return
	}
	b.resolveContent(ctx, chatID, userID, code, nil)
}

func (b *Bot) handleHelp(chatID, userID int64) {
	if !b.cfg.IsAdmin(userID) {
		b.reply(chatID, "Open a link you received to get its content, or use /start to check your subscriptions.\nUse /cancel to abandon a password prompt.")
		return
	}
	b.reply(chatID, `Administrator commands:
/admin - open the control panel
/setup <chat_id> <link> [duration|limit] - add a campaign
/unsetup <chat_id|all> - delete campaigns
/status - campaign status
/stats - bot statistics
/cancel - leave broadcast or link mode, or drop a password prompt

Duration: 30s, 5m, 1h, 2d; a bare number is a member limit; w means forever.`)
}

func (b *Bot) sendWelcome(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, welcomeText)
	if m := welcomeMarkup(b.cfg.WelcomeChannelURL); m != nil {
		msg.ReplyMarkup = *m
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send welcome", "chat_id", chatID, "error", err)
	}
}

// resolveContent runs a vault resolution and answers the user.
// secret is nil when the code was opened rather than answered.
func (b *Bot) resolveContent(ctx context.Context, chatID, userID int64, code string, secret *string) {
	res := b.vault.Resolve(code, userID, secret)
	b.log.Debug("content resolution", "user_id", userID, "code", code, "status", res.Status)

	switch res.Status {
	case vault.Delivered:
		if err := b.messenger.Deliver(ctx, chatID, res.Entry.Payload); err != nil {
			b.log.Error("deliver content", "chat_id", chatID, "code", code, "error", err)
			b.reply(chatID, msgDeliveryFailed)
		}
	case vault.NeedsPassword:
		b.reply(chatID, msgNeedsPassword)
	case vault.WrongPassword:
		b.reply(chatID, FormatWrongPassword(res.AttemptsLeft))
	case vault.Locked:
		b.reply(chatID, msgLocked)
	default:
		b.reply(chatID, msgInvalidLink)
	}
}

func (b *Bot) sendAdminMenu(chatID int64) {
	b.replyWithMarkup(chatID, adminMenuTitle, adminMenuMarkup())
}

func (b *Bot) handleSetup(ctx context.Context, chatID int64, args string) {
	a, err := ParseSetupArgs(args)
	if err != nil {
		b.reply(chatID, setupUsage)
		return
	}

	c, err := b.registry.Create(ctx, a.ChannelID, a.JoinLink, a.DurationSpec)
	if err != nil {
		var ve *apperr.ValidationError
		switch {
		case errors.Is(err, apperr.ErrCapacity):
			b.reply(chatID, fmt.Sprintf("Limit reached: at most %d active campaigns.", campaign.MaxCampaigns))
		case errors.As(err, &ve):
			b.reply(chatID, fmt.Sprintf("Error: %s\n\n%s", ve.Msg, setupUsage))
		default:
			b.log.Error("create campaign", "channel_id", a.ChannelID, "error", err)
			b.reply(chatID, "Failed to create the campaign.")
		}
		return
	}
	b.reply(chatID, FormatCampaignCreated(c))
}

func (b *Bot) handleUnsetup(ctx context.Context, chatID int64, args string) {
	id, all, err := ParseUnsetupArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unsetup <chat_id|all>")
		return
	}
	b.reply(chatID, b.deleteCampaigns(ctx, id, all))
}

// deleteCampaigns removes one campaign or all of them and returns the confirmation text.
func (b *Bot) deleteCampaigns(ctx context.Context, channelID int64, all bool) string {
	if all {
		return fmt.Sprintf("Deleted %d campaigns.", b.registry.DeleteAll(ctx))
	}
	if err := b.registry.Delete(ctx, channelID); errors.Is(err, apperr.ErrNotFound) {
		return "The campaign was already deleted."
	}
	return fmt.Sprintf("Campaign for %d deleted.", channelID)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	b.reply(chatID, b.statusReport(ctx))
}

// statusReport sweeps first so finished campaigns are not reported as active.
func (b *Bot) statusReport(ctx context.Context) string {
	if b.sweeper != nil {
		b.sweeper.Sweep(ctx)
	}

	active := b.registry.ListActive()
	items := make([]CampaignStatus, len(active))
	var g errgroup.Group
	g.SetLimit(statusConcurrency)
	for i, c := range active {
		g.Go(func() error {
			item := CampaignStatus{Campaign: c, Title: fallbackTitle(c.ChannelID)}
			info, err := b.oracle.ChannelInfo(ctx, c.ChannelID)
			if err != nil {
				b.log.Warn("channel info", "channel_id", c.ChannelID, "error", err)
			} else {
				if info.Title != "" {
					item.Title = info.Title
				}
				item.Members = info.MemberCount
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()
	return FormatStatus(items, time.Now())
}

func (b *Bot) handleStats(chatID int64) {
	b.replyHTML(chatID, FormatStats(b.stats()), nil)
}

func (b *Bot) stats() StatsView {
	return StatsView{
		Users:     b.users.Count(),
		Campaigns: b.registry.Count(),
		Vault:     b.vault.Stats(),
	}
}

func (b *Bot) handleBroadcastMessage(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	p, ok := payloadFromMessage(msg)
	if !ok {
		b.reply(chatID, msgUnsupported)
		return
	}
	p = prepareBroadcast(p)
	if p.Kind == model.PayloadText && strings.TrimSpace(p.Body) == "" {
		b.reply(chatID, msgEmptyMessage)
		return
	}
	recipients := len(b.dispatcher.Recipients())
	if recipients == 0 {
		b.reply(chatID, msgNoRecipients)
		return
	}

	b.reply(chatID, fmt.Sprintf("Broadcast started for %d users.", recipients))
	b.background.Add(1)
	go func() {
		defer b.background.Done()
		report := b.dispatcher.Broadcast(ctx, p)
		b.reply(chatID, FormatBroadcastReport(report.Delivered, report.Failed))
	}()
}

func (b *Bot) handleCreateLink(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	p, ok := payloadFromMessage(msg)
	if !ok {
		b.reply(chatID, msgUnsupported)
		return
	}
	p, password := splitPassword(p)

	code, err := b.vault.CreateEntry(ctx, p, password)
	if err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			b.reply(chatID, "Error: "+ve.Msg)
			return
		}
		b.log.Error("create content entry", "error", err)
		b.reply(chatID, "Failed to create the link.")
		return
	}

	link := vault.ShareLink(b.cfg.LinkHost, b.botUsername, code)
	b.replyHTML(chatID, FormatShareLink(link, password != ""), nil)
}
