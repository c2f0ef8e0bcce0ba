package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gate_bot/internal/apperr"
	"gate_bot/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMembersCount(config tgbotapi.ChatMemberCountConfig) (int, error)
}

// NewAPI connects to the Telegram Bot API with the given token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

// notFoundMarkers are the Bad Request descriptions Telegram uses for unknown users or chats.
var notFoundMarkers = []string{
	"user not found",
	"chat not found",
	"member not found",
	"participant_id_invalid",
}

// Oracle answers membership and channel queries through the Bot API.
// Every call is bounded by the configured timeout.
type Oracle struct {
	api     telegramAPI
	timeout time.Duration
	log     *slog.Logger
}

// NewOracle creates an Oracle. A non-positive timeout falls back to 10s.
func NewOracle(api telegramAPI, timeout time.Duration, log *slog.Logger) *Oracle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Oracle{api: api, timeout: timeout, log: log}
}

// MembershipStatus returns userID's status in channelID.
func (o *Oracle) MembershipStatus(ctx context.Context, userID, channelID int64) (model.MemberStatus, error) {
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: channelID, UserID: userID},
	}
	member, err := bounded(ctx, o.timeout, func() (tgbotapi.ChatMember, error) {
		return o.api.GetChatMember(cfg)
	})
	if err != nil {
		return "", classifyOracleError(channelID, err)
	}
	return model.MemberStatus(member.Status), nil
}

// MemberCount returns the number of members of channelID.
func (o *Oracle) MemberCount(ctx context.Context, channelID int64) (int, error) {
	cfg := tgbotapi.ChatMemberCountConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: channelID}}
	n, err := bounded(ctx, o.timeout, func() (int, error) {
		return o.api.GetChatMembersCount(cfg)
	})
	if err != nil {
		return 0, classifyOracleError(channelID, err)
	}
	return n, nil
}

// ChannelInfo returns the title of channelID and, when available, its member count.
func (o *Oracle) ChannelInfo(ctx context.Context, channelID int64) (model.ChannelInfo, error) {
	cfg := tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: channelID}}
	chat, err := bounded(ctx, o.timeout, func() (tgbotapi.Chat, error) {
		return o.api.GetChat(cfg)
	})
	if err != nil {
		return model.ChannelInfo{}, classifyOracleError(channelID, err)
	}

	info := model.ChannelInfo{Title: chat.Title}
	if info.Title == "" && chat.UserName != "" {
		info.Title = "@" + chat.UserName
	}
	if n, err := o.MemberCount(ctx, channelID); err == nil {
		info.MemberCount = &n
	} else {
		o.log.Debug("member count unavailable", "channel_id", channelID, "error", err)
	}
	return info, nil
}

// ChannelTitle returns a display name for channelID, falling back to a
// generic label when the channel cannot be queried.
func (o *Oracle) ChannelTitle(ctx context.Context, channelID int64) string {
	cfg := tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: channelID}}
	chat, err := bounded(ctx, o.timeout, func() (tgbotapi.Chat, error) {
		return o.api.GetChat(cfg)
	})
	if err != nil {
		o.log.Debug("channel title unavailable", "channel_id", channelID, "error", err)
		return fallbackTitle(channelID)
	}
	switch {
	case chat.Title != "":
		return chat.Title
	case chat.UserName != "":
		return "@" + chat.UserName
	default:
		return fallbackTitle(channelID)
	}
}

func fallbackTitle(channelID int64) string {
	return fmt.Sprintf("Channel %d", channelID)
}

// bounded runs fn and gives up when ctx is done or timeout elapses.
// The Bot API client takes no context, so an abandoned call finishes in the background.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func classifyOracleError(channelID int64, err error) error {
	var apiErr *tgbotapi.Error
	notFound := false
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
		desc := strings.ToLower(apiErr.Message)
		for _, m := range notFoundMarkers {
			if strings.Contains(desc, m) {
				notFound = true
				break
			}
		}
	}
	return &apperr.OracleError{ChannelID: channelID, NotFound: notFound, Err: err}
}
