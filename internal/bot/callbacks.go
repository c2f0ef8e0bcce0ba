package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const subscribedText = "Great! You are subscribed to every channel."

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	userID := cb.From.ID

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	b.log.Info("callback",
		"data", data,
		"chat_id", chatID,
		"user_id", userID,
		"username", cb.From.UserName,
	)

	if code, ok := parseCheckSubData(data); ok {
		b.handleCheckSub(ctx, chatID, messageID, userID, code)
		return
	}

	if !b.cfg.IsAdmin(userID) {
		return
	}

	switch data {
	case cbAdminSetup:
		b.edit(chatID, messageID, setupHelpText, nil, true)
	case cbAdminUnsetup:
		active := b.registry.ListActive()
		if len(active) == 0 {
			back := backMarkup()
			b.edit(chatID, messageID, msgNoCampaigns, &back, false)
			return
		}
		m := deleteMarkup(active)
		b.edit(chatID, messageID, deletePickerPrompt, &m, false)
	case cbAdminStatus:
		back := backMarkup()
		b.edit(chatID, messageID, b.statusReport(ctx), &back, false)
	case cbAdminStats:
		back := backMarkup()
		b.edit(chatID, messageID, FormatStats(b.stats()), &back, true)
	case cbAdminCast:
		b.setMode(userID, modeBroadcast)
		m := cancelMarkup(cbCancelCast)
		b.edit(chatID, messageID, broadcastPromptText, &m, true)
	case cbAdminLink:
		b.setMode(userID, modeCreateLink)
		m := cancelMarkup(cbCancelLink)
		b.edit(chatID, messageID, createLinkPromptText, &m, true)
	case cbAdminBack:
		m := adminMenuMarkup()
		b.edit(chatID, messageID, adminMenuTitle, &m, false)
	case cbCancelCast:
		b.setMode(userID, modeNone)
		b.edit(chatID, messageID, "Broadcast cancelled.", nil, false)
	case cbCancelLink:
		b.setMode(userID, modeNone)
		b.edit(chatID, messageID, "Link creation cancelled.", nil, false)
	case cbDeleteAll:
		b.edit(chatID, messageID, b.deleteCampaigns(ctx, 0, true), nil, false)
	default:
		idStr, ok := strings.CutPrefix(data, cbDeletePrefix)
		if !ok {
			return
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return
		}
		b.edit(chatID, messageID, b.deleteCampaigns(ctx, id, false), nil, false)
	}
}

// handleCheckSub re-verifies the user's subscriptions in place. When code is
// set, the pending content follows a successful check.
func (b *Bot) handleCheckSub(ctx context.Context, chatID int64, messageID int, userID int64, code string) {
	missing := b.verifier.Unsatisfied(ctx, userID)
	if len(missing) > 0 {
		n := min(len(missing), maxListedChannels)
		titles := make([]string, 0, n)
		for _, c := range missing[:n] {
			titles = append(titles, b.oracle.ChannelTitle(ctx, c.ChannelID))
		}
		m := subscriptionMarkup(missing, code)
		b.edit(chatID, messageID, FormatNotSubscribed(titles, len(missing)), &m, false)
		return
	}

	if code != "" {
		b.edit(chatID, messageID, subscribedText, nil, false)
		b.resolveContent(ctx, chatID, userID, code, nil)
		return
	}
	b.edit(chatID, messageID, subscribedText+"\n\n"+welcomeText, welcomeMarkup(b.cfg.WelcomeChannelURL), false)
}
