// Package model defines the domain types used across the application.
package model

import "time"

// ExpiryKind defines how a campaign ends.
type ExpiryKind string

// Supported expiry kinds.
const (
	ExpiryNever       ExpiryKind = "never"
	ExpiryAt          ExpiryKind = "at"
	ExpiryMemberLimit ExpiryKind = "member_limit"
)

// Expiry is the closing policy of a campaign. At is set only for ExpiryAt,
// MemberLimit only for ExpiryMemberLimit.
type Expiry struct {
	Kind        ExpiryKind
	At          time.Time
	MemberLimit int
}

// Campaign is a channel-scoped subscription requirement.
type Campaign struct {
	ChannelID int64
	JoinLink  string
	Expiry    Expiry
	CreatedAt time.Time
}

// CloseReason tells why the sweep closed a campaign.
type CloseReason string

// Supported close reasons.
const (
	ReasonTimeExpired  CloseReason = "time_expired"
	ReasonLimitReached CloseReason = "limit_reached"
)

// ClosedCampaign is emitted by the expiry sweep for every campaign it closes.
type ClosedCampaign struct {
	Campaign    Campaign
	Reason      CloseReason
	ClosedAt    time.Time
	ActiveFor   time.Duration
	MemberCount *int
}

// PayloadKind defines the type of message content.
type PayloadKind string

// Supported payload kinds.
const (
	PayloadText     PayloadKind = "text"
	PayloadPhoto    PayloadKind = "photo"
	PayloadVideo    PayloadKind = "video"
	PayloadDocument PayloadKind = "document"
)

// Button is an inline URL button attached to a message.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Payload is a deliverable message. Body holds the HTML text for text
// payloads and the platform file handle for media payloads.
type Payload struct {
	Kind    PayloadKind
	Body    string
	Caption string
	Buttons []Button
}

// ContentEntry is a vault item addressed by a share code.
type ContentEntry struct {
	Code      string
	Payload   Payload
	Password  string
	CreatedAt time.Time
}

// Protected reports whether the entry requires a password.
func (e ContentEntry) Protected() bool {
	return e.Password != ""
}

// MemberStatus is a user's membership status in a channel as reported by the platform.
type MemberStatus string

// Statuses reported by the Telegram Bot API.
const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// Satisfies reports whether the status counts as subscribed.
func (s MemberStatus) Satisfies() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	}
	return false
}

// ChannelInfo is public channel metadata.
type ChannelInfo struct {
	Title       string
	MemberCount *int
}
