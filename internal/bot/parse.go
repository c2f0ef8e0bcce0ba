package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gate_bot/internal/campaign"
	"gate_bot/internal/markup"
	"gate_bot/internal/model"
)

const setupUsage = "Usage: /setup <chat_id> <link> [duration|limit]\nExample: /setup -100123456 https://t.me/channel 30m"

// SetupArgs holds the parsed arguments of /setup.
type SetupArgs struct {
	ChannelID    int64
	JoinLink     string
	DurationSpec string
}

// ParseSetupArgs parses "<chat_id> <link> [duration|limit]".
// A missing duration means the campaign never expires.
func ParseSetupArgs(args string) (SetupArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 || len(parts) > 3 {
		return SetupArgs{}, fmt.Errorf("expected 2 or 3 arguments")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return SetupArgs{}, fmt.Errorf("invalid chat ID %q", parts[0])
	}
	out := SetupArgs{ChannelID: id, JoinLink: parts[1], DurationSpec: campaign.NeverToken}
	if len(parts) == 3 {
		out.DurationSpec = parts[2]
	}
	return out, nil
}

// ParseUnsetupArg parses "<chat_id>" or "all". all is true for the latter.
func ParseUnsetupArg(args string) (channelID int64, all bool, err error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, false, fmt.Errorf("chat ID is required")
	}
	if strings.EqualFold(s, "all") {
		return 0, true, nil
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid chat ID %q", s)
	}
	return id, false, nil
}

// payloadFromMessage extracts the raw payload of an administrator message.
// ok is false for unsupported message types.
func payloadFromMessage(msg *tgbotapi.Message) (model.Payload, bool) {
	switch {
	case len(msg.Photo) > 0:
		// The last size is the largest.
		return model.Payload{Kind: model.PayloadPhoto, Body: msg.Photo[len(msg.Photo)-1].FileID, Caption: msg.Caption}, true
	case msg.Video != nil:
		return model.Payload{Kind: model.PayloadVideo, Body: msg.Video.FileID, Caption: msg.Caption}, true
	case msg.Document != nil:
		return model.Payload{Kind: model.PayloadDocument, Body: msg.Document.FileID, Caption: msg.Caption}, true
	case msg.Text != "":
		return model.Payload{Kind: model.PayloadText, Body: msg.Text}, true
	default:
		return model.Payload{}, false
	}
}

// splitPassword strips a "#[password]" prefix from the text or caption of p.
func splitPassword(p model.Payload) (model.Payload, string) {
	field := &p.Caption
	if p.Kind == model.PayloadText {
		field = &p.Body
	}
	password, rest, ok := markup.ParsePasswordPrefix(*field)
	if !ok {
		return p, ""
	}
	*field = rest
	return p, password
}

// prepareBroadcast applies the authoring pipeline to a raw broadcast payload.
func prepareBroadcast(p model.Payload) model.Payload {
	if p.Kind == model.PayloadText {
		p.Body, p.Buttons = markup.Prepare(strings.TrimSpace(p.Body))
	} else {
		p.Caption, p.Buttons = markup.Prepare(p.Caption)
	}
	return p
}

// Callback data values.
const (
	cbCheckSub     = "check_sub"
	cbAdminSetup   = "admin_setup"
	cbAdminUnsetup = "admin_unsetup"
	cbAdminStatus  = "admin_status"
	cbAdminStats   = "admin_stats"
	cbAdminCast    = "admin_broadcast"
	cbAdminLink    = "admin_create_link"
	cbAdminBack    = "admin_back"
	cbCancelCast   = "cancel_broadcast"
	cbCancelLink   = "cancel_link"
	cbDeleteAll    = "del_all"
	cbDeletePrefix = "del_"
)

// checkSubData builds check_sub callback data carrying an optional pending code.
func checkSubData(code string) string {
	if code == "" {
		return cbCheckSub
	}
	return cbCheckSub + ":" + code
}

// parseCheckSubData returns the code carried by check_sub callback data.
func parseCheckSubData(data string) (code string, ok bool) {
	if data == cbCheckSub {
		return "", true
	}
	code, found := strings.CutPrefix(data, cbCheckSub+":")
	return code, found
}
