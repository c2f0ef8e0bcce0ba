package campaign

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gate_bot/internal/apperr"
)

const (
	// MaxCampaigns is the number of campaigns that may be active at once.
	MaxCampaigns = 15
	// MaxMemberLimit bounds member-count thresholds.
	MaxMemberLimit = 50000
	// NeverToken is the duration argument meaning "no expiry".
	NeverToken = "w"

	joinLinkPrefix = "https://t.me/"
)

// DurationKind tells which variant a DurationSpec holds.
type DurationKind int

// Supported duration spec variants.
const (
	DurationNever DurationKind = iota
	DurationRelative
	DurationMemberLimit
)

// DurationSpec is the parsed expiry argument of a create-campaign command.
type DurationSpec struct {
	Kind        DurationKind
	Duration    time.Duration
	MemberLimit int
}

var relativeDuration = regexp.MustCompile(`^(\d+)([smhd])$`)

var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseDurationSpec parses "w" (or empty) as no expiry, a bare number as a
// member limit, and <n>s|m|h|d as a relative duration.
func ParseDurationSpec(raw string) (DurationSpec, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == NeverToken {
		return DurationSpec{Kind: DurationNever}, nil
	}

	if isDigits(s) {
		limit, err := strconv.Atoi(s)
		if err != nil || limit > MaxMemberLimit {
			return DurationSpec{}, apperr.Validation("limit", "member limit cannot exceed %d", MaxMemberLimit)
		}
		if limit < 1 {
			return DurationSpec{}, apperr.Validation("limit", "member limit must be at least 1")
		}
		return DurationSpec{Kind: DurationMemberLimit, MemberLimit: limit}, nil
	}

	m := relativeDuration.FindStringSubmatch(s)
	if m == nil {
		return DurationSpec{}, apperr.Validation("duration", "invalid format %q, use 30s, 5m, 1h, 2d, a member count, or %s", raw, NeverToken)
	}
	amount, err := strconv.Atoi(m[1])
	if err != nil || amount < 1 {
		return DurationSpec{}, apperr.Validation("duration", "duration must be positive")
	}
	unit := unitDurations[m[2]]
	if int64(amount) > int64(maxDuration/unit) {
		return DurationSpec{}, apperr.Validation("duration", "duration %q is too long", raw)
	}
	return DurationSpec{Kind: DurationRelative, Duration: time.Duration(amount) * unit}, nil
}

// About 290 years; keeps time.Duration arithmetic from overflowing.
const maxDuration = time.Duration(1<<63 - 1)

// ValidateJoinLink checks that link points at a Telegram channel or invite.
func ValidateJoinLink(link string) error {
	if !strings.HasPrefix(link, joinLinkPrefix) {
		return apperr.Validation("link", "link must start with %s", joinLinkPrefix)
	}
	u, err := url.Parse(link)
	if err != nil {
		return apperr.Validation("link", "malformed link: %v", err)
	}
	if strings.Trim(u.Path, "/") == "" {
		return apperr.Validation("link", "link has no channel path")
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
