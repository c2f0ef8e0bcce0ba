// Package verifier decides which active campaigns a user has not satisfied yet.
package verifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"gate_bot/internal/apperr"
	"gate_bot/internal/model"
)

// Oracle answers membership queries against the messaging platform.
type Oracle interface {
	MembershipStatus(ctx context.Context, userID, channelID int64) (model.MemberStatus, error)
}

// CampaignLister supplies the active campaigns to check.
type CampaignLister interface {
	ListActive() []model.Campaign
}

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 5
)

// Verifier evaluates a user's subscriptions. Any uncertain result counts as
// not subscribed.
type Verifier struct {
	campaigns   CampaignLister
	oracle      Oracle
	log         *slog.Logger
	timeout     time.Duration
	concurrency int
}

// New creates a Verifier.
func New(campaigns CampaignLister, oracle Oracle, log *slog.Logger) *Verifier {
	return &Verifier{
		campaigns:   campaigns,
		oracle:      oracle,
		log:         log,
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
	}
}

// SetTimeout overrides the per-check timeout.
func (v *Verifier) SetTimeout(d time.Duration) {
	if d > 0 {
		v.timeout = d
	}
}

// Unsatisfied returns the campaigns userID has not joined, in ListActive order.
func (v *Verifier) Unsatisfied(ctx context.Context, userID int64) []model.Campaign {
	active := v.campaigns.ListActive()
	if len(active) == 0 {
		return nil
	}

	missing := make([]bool, len(active))
	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, c := range active {
		g.Go(func() error {
			missing[i] = !v.satisfied(ctx, userID, c.ChannelID)
			return nil
		})
	}
	_ = g.Wait()

	var out []model.Campaign
	for i, c := range active {
		if missing[i] {
			out = append(out, c)
		}
	}
	return out
}

// UnsatisfiedChannels is Unsatisfied reduced to channel IDs.
func (v *Verifier) UnsatisfiedChannels(ctx context.Context, userID int64) []int64 {
	var ids []int64
	for _, c := range v.Unsatisfied(ctx, userID) {
		ids = append(ids, c.ChannelID)
	}
	return ids
}

func (v *Verifier) satisfied(ctx context.Context, userID, channelID int64) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	status, err := v.oracle.MembershipStatus(ctx, userID, channelID)
	if err == nil {
		return status.Satisfies()
	}

	var oe *apperr.OracleError
	if errors.As(err, &oe) && oe.NotFound {
		v.log.Debug("membership unknown", "user_id", userID, "channel_id", channelID, "error", err)
		return false
	}
	v.log.Warn("membership check failed", "user_id", userID, "channel_id", channelID, "error", err)
	return false
}
