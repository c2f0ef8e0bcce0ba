// Package markup prepares admin-authored text for delivery in Telegram HTML parse mode.
package markup

import (
	"regexp"
	"strings"

	"gate_bot/internal/model"
)

const (
	// CodeMarker starts a line that is rendered as an inline code span.
	CodeMarker = "$"
	// ButtonsDelimiter separates message text from the button section.
	ButtonsDelimiter = "\nBUTTONS:\n"
	// MaxButtons is the number of button lines considered.
	MaxButtons = 10
)

var allowedSchemes = []string{"http://", "https://", "tg://"}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

var passwordPrefix = regexp.MustCompile(`(?s)^#\[([^\]]+)\]\s*(.*)`)

// EscapeHTML escapes the characters Telegram's HTML parser treats specially.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// FormatCodeBlocks turns lines starting with CodeMarker into <code> spans and
// escapes every other line.
func FormatCodeBlocks(text string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")
		if rest, ok := strings.CutPrefix(trimmed, CodeMarker); ok {
			lines[i] = "<code>" + EscapeHTML(rest) + "</code>"
			continue
		}
		lines[i] = EscapeHTML(line)
	}
	return strings.Join(lines, "\n")
}

// ParseButtons splits text at ButtonsDelimiter and parses up to MaxButtons
// lines of the form "label | url". Lines without a label or with a URL outside
// the allowed schemes are dropped.
func ParseButtons(text string) (string, []model.Button) {
	body, section, found := strings.Cut(text, ButtonsDelimiter)
	if !found {
		return text, nil
	}

	lines := strings.Split(strings.TrimSpace(section), "\n")
	if len(lines) > MaxButtons {
		lines = lines[:MaxButtons]
	}

	var buttons []model.Button
	for _, line := range lines {
		label, url, ok := strings.Cut(line, " | ")
		if !ok {
			continue
		}
		label = strings.TrimSpace(label)
		url = strings.TrimSpace(url)
		if label == "" || !hasAllowedScheme(url) {
			continue
		}
		buttons = append(buttons, model.Button{Label: label, URL: url})
	}
	return body, buttons
}

func hasAllowedScheme(url string) bool {
	for _, scheme := range allowedSchemes {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}

// ParsePasswordPrefix extracts a leading "#[password]" marker.
// ok is false when text carries no marker; rest is then text unchanged.
func ParsePasswordPrefix(text string) (password, rest string, ok bool) {
	m := passwordPrefix.FindStringSubmatch(text)
	if m == nil {
		return "", text, false
	}
	password = strings.TrimSpace(m[1])
	if password == "" {
		return "", text, false
	}
	return password, strings.TrimSpace(m[2]), true
}

// Prepare runs the authoring pipeline used for stored and broadcast text:
// buttons are split off the raw text first, then the remaining body is formatted.
func Prepare(raw string) (string, []model.Button) {
	body, buttons := ParseButtons(raw)
	return FormatCodeBlocks(body), buttons
}
