package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gate_bot/internal/model"
)

func adminMenuMarkup() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Add campaign", cbAdminSetup)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Delete campaign", cbAdminUnsetup)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Campaign status", cbAdminStatus)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Statistics", cbAdminStats)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Broadcast", cbAdminCast)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Create link", cbAdminLink)),
	)
}

func backMarkup() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Back", cbAdminBack)),
	)
}

func cancelMarkup(data string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Cancel", data)),
	)
}

func deleteMarkup(campaigns []model.Campaign) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(campaigns)+2)
	for _, c := range campaigns {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Delete %d", c.ChannelID), fmt.Sprintf("%s%d", cbDeletePrefix, c.ChannelID)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Delete all", cbDeleteAll)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Back", cbAdminBack)),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// subscriptionMarkup shows join buttons two per row, then the check button.
// code rides along in the check button so content can follow a successful check.
func subscriptionMarkup(missing []model.Campaign, code string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(missing); i += 2 {
		row := []tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonURL("Subscribe", missing[i].JoinLink)}
		if i+1 < len(missing) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL("Subscribe", missing[i+1].JoinLink))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Check subscription", checkSubData(code)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// welcomeMarkup returns the optional channel button of the welcome message.
func welcomeMarkup(channelURL string) *tgbotapi.InlineKeyboardMarkup {
	if channelURL == "" {
		return nil
	}
	m := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Our channel", channelURL)),
	)
	return &m
}
