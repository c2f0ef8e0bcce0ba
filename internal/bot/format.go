package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gate_bot/internal/markup"
	"gate_bot/internal/model"
	"gate_bot/internal/vault"
)

const (
	timeLayout = "02 January 2006, 15:04 UTC"

	// maxListedChannels bounds the "not subscribed" list shown after a failed check.
	maxListedChannels = 5
)

const welcomeText = `Welcome!

You have access to everything this bot shares. Open a link you received to get its content.`

const subscribePromptText = `Before using the bot, subscribe to the channels below.

Tap each button, then press "Check subscription".`

const setupHelpText = `Send the command in this format:
<code>/setup &lt;chat_id&gt; &lt;link&gt; [duration|limit]</code>

Examples:
<code>/setup -1001994526641 https://t.me/channel 30m</code> for 30 minutes
<code>/setup -1001994526641 https://t.me/channel 100</code> until 100 members
<code>/setup -1001994526641 https://t.me/channel 1h</code> for 1 hour
<code>/setup -1001994526641 https://t.me/channel w</code> forever

Units: s (seconds), m (minutes), h (hours), d (days)`

const broadcastPromptText = `Send the message to broadcast (text, photo, video or document).

Buttons can be appended at the end:

<code>BUTTONS:
Button | https://example.com</code>`

const createLinkPromptText = `Send the message (text, photo, video or document) to create a link for.

Password-protected format: <code>#[password] text</code>`

// FormatDuration renders d as days, hours and minutes, e.g. "2d 3h 15m".
// Durations under five minutes include seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	secs := total % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if total < 300 && (secs > 0 || len(parts) == 0) {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}

// formatCount renders n with thousands separators.
func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

// CampaignStatus is one campaign together with its channel metadata.
type CampaignStatus struct {
	Campaign model.Campaign
	Title    string
	Members  *int
}

// FormatStatus renders the administrator status report.
func FormatStatus(items []CampaignStatus, now time.Time) string {
	if len(items) == 0 {
		return "No active campaigns."
	}

	var b strings.Builder
	b.WriteString("Active campaigns:\n")
	for _, it := range items {
		c := it.Campaign
		limit := "∞"
		if c.Expiry.Kind == model.ExpiryMemberLimit {
			limit = formatCount(c.Expiry.MemberLimit)
		}
		left, end := "∞", "never"
		if c.Expiry.Kind == model.ExpiryAt {
			left = FormatDuration(c.Expiry.At.Sub(now))
			end = c.Expiry.At.UTC().Format(timeLayout)
		}
		members := "unknown"
		if it.Members != nil {
			members = formatCount(*it.Members)
		}

		fmt.Fprintf(&b, "\n%s / %s\n", it.Title, c.JoinLink)
		fmt.Fprintf(&b, "ID: %d\n", c.ChannelID)
		fmt.Fprintf(&b, "Limit: %s / Time left: %s\n", limit, left)
		fmt.Fprintf(&b, "Ends: %s\n", end)
		fmt.Fprintf(&b, "Members: %s\n", members)
	}
	return b.String()
}

// StatsView is the data shown by the statistics screen.
type StatsView struct {
	Users     int
	Campaigns int
	Vault     vault.Stats
}

// FormatStats renders bot statistics as HTML.
func FormatStats(s StatsView) string {
	var b strings.Builder
	b.WriteString("<b>Bot statistics</b>\n\n")
	fmt.Fprintf(&b, "Users: <b>%s</b>\n", formatCount(s.Users))
	fmt.Fprintf(&b, "Active campaigns: <b>%d</b>\n", s.Campaigns)
	fmt.Fprintf(&b, "Saved links: <b>%d</b>\n", s.Vault.Entries)
	fmt.Fprintf(&b, "Password-protected: <b>%d</b>", s.Vault.Protected)
	return b.String()
}

// FormatClosure renders the administrator notification for a closed campaign as HTML.
func FormatClosure(c model.ClosedCampaign, title string) string {
	reason := "the time limit expired"
	if c.Reason == model.ReasonLimitReached {
		reason = fmt.Sprintf("the limit of %s members was reached", formatCount(c.Campaign.Expiry.MemberLimit))
	}
	members := "n/a"
	if c.MemberCount != nil {
		members = formatCount(*c.MemberCount)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Campaign for <b>%s</b> is no longer active.\n\n", markup.EscapeHTML(title))
	fmt.Fprintf(&b, "<a href=\"%s\">Open channel</a>\n\n", markup.EscapeHTML(c.Campaign.JoinLink))
	b.WriteString("<b>Summary:</b>\n")
	fmt.Fprintf(&b, "Started: %s\n", c.Campaign.CreatedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "Ended: %s\n", c.ClosedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(c.ActiveFor))
	fmt.Fprintf(&b, "Members: %s\n\n", members)
	fmt.Fprintf(&b, "<b>Reason:</b> %s", reason)
	return b.String()
}

// FormatCampaignCreated confirms a new campaign to the administrator.
func FormatCampaignCreated(c model.Campaign) string {
	var validity string
	switch c.Expiry.Kind {
	case model.ExpiryAt:
		validity = fmt.Sprintf("until %s (%s)", c.Expiry.At.UTC().Format(timeLayout), FormatDuration(c.Expiry.At.Sub(c.CreatedAt)))
	case model.ExpiryMemberLimit:
		validity = fmt.Sprintf("until %s members", formatCount(c.Expiry.MemberLimit))
	default:
		validity = "forever"
	}
	return fmt.Sprintf("Campaign added!\nID: %d\nLink: %s\nValid: %s", c.ChannelID, c.JoinLink, validity)
}

// FormatNotSubscribed lists the channels a user still has to join.
func FormatNotSubscribed(titles []string, total int) string {
	var b strings.Builder
	b.WriteString("You are not subscribed to all channels!\n\nMissing:\n")
	for _, t := range titles {
		fmt.Fprintf(&b, "• %s\n", t)
	}
	if rest := total - len(titles); rest > 0 {
		fmt.Fprintf(&b, "• ... and %d more\n", rest)
	}
	b.WriteString("\nPlease subscribe to every channel and press \"Check subscription\".")
	return b.String()
}

// FormatBroadcastReport summarises a finished broadcast.
func FormatBroadcastReport(delivered, failed int) string {
	return fmt.Sprintf("Broadcast finished!\nDelivered: %d\nFailed: %d", delivered, failed)
}

// FormatShareLink renders the reply to a created content link.
func FormatShareLink(link string, protected bool) string {
	s := fmt.Sprintf("Link created!\n\n<code>%s</code>", markup.EscapeHTML(link))
	if protected {
		s += "\n\nPassword protected."
	}
	return s
}

// FormatWrongPassword tells the user how many attempts they have used.
func FormatWrongPassword(attemptsLeft int) string {
	return fmt.Sprintf("Wrong password. Attempt %d/%d.\nEnter the password to access the content:", vault.MaxAttempts-attemptsLeft, vault.MaxAttempts)
}
