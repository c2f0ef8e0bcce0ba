// Package vault stores shareable content behind generated codes and runs
// password challenges for protected entries.
package vault

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"gate_bot/internal/apperr"
	"gate_bot/internal/markup"
	"gate_bot/internal/model"
)

const (
	// MinCodeLength and MaxCodeLength bound generated codes.
	MinCodeLength = 6
	MaxCodeLength = 25
	// MaxAttempts is the number of wrong passwords that locks a challenge.
	MaxAttempts = 3

	codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-"
)

// Store is the persistence the vault writes through.
type Store interface {
	PutContent(ctx context.Context, e model.ContentEntry) error
	ListContent(ctx context.Context) ([]model.ContentEntry, error)
}

// Status is the outcome of a resolution.
type Status int

// Resolution outcomes.
const (
	NotFound Status = iota
	Delivered
	NeedsPassword
	WrongPassword
	Locked
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case NeedsPassword:
		return "needs_password"
	case WrongPassword:
		return "wrong_password"
	case Locked:
		return "locked"
	default:
		return "not_found"
	}
}

// Resolution is the result of Resolve. Entry is set only when Status is Delivered.
type Resolution struct {
	Status       Status
	Entry        *model.ContentEntry
	AttemptsLeft int
}

type challenge struct {
	code     string
	attempts int
	touched  time.Time
}

// Stats summarises the vault contents.
type Stats struct {
	Entries   int
	Protected int
}

// Vault owns content entries and per-user password challenges.
type Vault struct {
	mu           sync.Mutex
	entries      map[string]model.ContentEntry
	challenges   map[int64]challenge
	store        Store
	log          *slog.Logger
	now          func() time.Time
	intn         func(n int) int
	challengeTTL time.Duration
}

// New creates an empty Vault backed by store.
func New(store Store, log *slog.Logger) *Vault {
	return &Vault{
		entries:    make(map[string]model.ContentEntry),
		challenges: make(map[int64]challenge),
		store:      store,
		log:        log,
		now:        time.Now,
		intn:       rand.IntN,
	}
}

// SetClock overrides the time source (useful for testing).
func (v *Vault) SetClock(now func() time.Time) {
	v.now = now
}

// SetRand overrides the random source used for code generation (useful for testing).
func (v *Vault) SetRand(intn func(n int) int) {
	v.intn = intn
}

// SetChallengeTTL makes idle challenges expire after d. Zero disables expiry.
func (v *Vault) SetChallengeTTL(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.challengeTTL = d
}

// Load replaces the in-memory entries with the stored ones.
func (v *Vault) Load(ctx context.Context) error {
	stored, err := v.store.ListContent(ctx)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = make(map[string]model.ContentEntry, len(stored))
	for _, e := range stored {
		v.entries[e.Code] = e
	}
	v.log.Info("content entries loaded", "count", len(stored))
	return nil
}

// CreateEntry stores payload under a fresh code and returns the code.
// Text bodies and captions are converted to delivery-ready HTML here, with
// any BUTTONS section split off into payload buttons.
func (v *Vault) CreateEntry(ctx context.Context, payload model.Payload, password string) (string, error) {
	switch payload.Kind {
	case model.PayloadText:
		body, buttons := markup.Prepare(payload.Body)
		if strings.TrimSpace(body) == "" {
			return "", apperr.Validation("content", "message is empty")
		}
		payload.Body = body
		payload.Buttons = append(payload.Buttons, buttons...)
	case model.PayloadPhoto, model.PayloadVideo, model.PayloadDocument:
		if payload.Body == "" {
			return "", apperr.Validation("content", "media file is missing")
		}
		caption, buttons := markup.Prepare(payload.Caption)
		payload.Caption = caption
		payload.Buttons = append(payload.Buttons, buttons...)
	default:
		return "", apperr.Validation("content", "only text, photo, video and document are supported")
	}

	v.mu.Lock()
	code := v.generateCode()
	entry := model.ContentEntry{
		Code:      code,
		Payload:   payload,
		Password:  password,
		CreatedAt: v.now().UTC(),
	}
	v.entries[code] = entry
	v.mu.Unlock()

	if err := v.store.PutContent(ctx, entry); err != nil {
		v.log.Error("persist content", "code", code, "error", err)
	}
	v.log.Info("content entry created", "code", code, "kind", payload.Kind, "protected", entry.Protected())
	return code, nil
}

// generateCode must be called with v.mu held.
func (v *Vault) generateCode() string {
	for {
		length := MinCodeLength + v.intn(MaxCodeLength-MinCodeLength+1)
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = codeAlphabet[v.intn(len(codeAlphabet))]
		}
		code := string(buf)
		if !ValidCode(code) {
			continue
		}
		if _, taken := v.entries[code]; taken {
			continue
		}
		return code
	}
}

// ValidCode reports whether code has the shape of a generated code.
func ValidCode(code string) bool {
	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return false
	}
	if strings.HasPrefix(code, "-") || strings.HasSuffix(code, "-") {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// Resolve looks up code on behalf of userID. secret is the password the user
// supplied, or nil when the code was merely opened.
func (v *Vault) Resolve(code string, userID int64, secret *string) Resolution {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.entries[code]
	if !ok {
		return Resolution{Status: NotFound}
	}
	if !entry.Protected() {
		return Resolution{Status: Delivered, Entry: &entry}
	}

	now := v.now()
	ch, pending := v.liveChallenge(userID, now)
	if !pending || ch.code != code {
		// A user holds one challenge at a time; opening another code replaces it.
		v.challenges[userID] = challenge{code: code, touched: now}
		return Resolution{Status: NeedsPassword, AttemptsLeft: MaxAttempts}
	}

	if secret == nil {
		ch.touched = now
		v.challenges[userID] = ch
		return Resolution{Status: NeedsPassword, AttemptsLeft: MaxAttempts - ch.attempts}
	}

	if subtle.ConstantTimeCompare([]byte(*secret), []byte(entry.Password)) == 1 {
		delete(v.challenges, userID)
		return Resolution{Status: Delivered, Entry: &entry}
	}

	ch.attempts++
	if ch.attempts >= MaxAttempts {
		delete(v.challenges, userID)
		v.log.Info("password challenge locked", "user_id", userID, "code", code)
		return Resolution{Status: Locked}
	}
	ch.touched = now
	v.challenges[userID] = ch
	return Resolution{Status: WrongPassword, AttemptsLeft: MaxAttempts - ch.attempts}
}

// PendingCode returns the code of userID's in-flight challenge.
func (v *Vault) PendingCode(userID int64) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch, ok := v.liveChallenge(userID, v.now())
	return ch.code, ok
}

// CancelChallenge drops userID's in-flight challenge, if any.
func (v *Vault) CancelChallenge(userID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.challenges, userID)
}

// PruneChallenges evicts challenges idle for longer than the TTL and returns
// how many were removed.
func (v *Vault) PruneChallenges() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.challengeTTL <= 0 {
		return 0
	}
	now := v.now()
	n := 0
	for uid, ch := range v.challenges {
		if v.expired(ch, now) {
			delete(v.challenges, uid)
			n++
		}
	}
	return n
}

// liveChallenge must be called with v.mu held. It drops an expired challenge.
func (v *Vault) liveChallenge(userID int64, now time.Time) (challenge, bool) {
	ch, ok := v.challenges[userID]
	if !ok {
		return challenge{}, false
	}
	if v.expired(ch, now) {
		delete(v.challenges, userID)
		return challenge{}, false
	}
	return ch, true
}

func (v *Vault) expired(ch challenge, now time.Time) bool {
	return v.challengeTTL > 0 && now.Sub(ch.touched) >= v.challengeTTL
}

// Stats returns entry counts.
func (v *Vault) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := Stats{Entries: len(v.entries)}
	for _, e := range v.entries {
		if e.Protected() {
			s.Protected++
		}
	}
	return s
}

// ShareLink builds the deep link that opens code in the bot.
func ShareLink(host, botUsername, code string) string {
	return fmt.Sprintf("https://%s/%s?start=%s", host, botUsername, code)
}
