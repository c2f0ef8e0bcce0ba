// Package campaign owns the set of active subscription campaigns and their expiry.
package campaign

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gate_bot/internal/apperr"
	"gate_bot/internal/model"
)

// Store is the persistence the registry writes through.
type Store interface {
	PutCampaign(ctx context.Context, c model.Campaign) error
	DeleteCampaign(ctx context.Context, channelID int64) error
	DeleteAllCampaigns(ctx context.Context) error
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)
}

// MemberCounter reports the current member count of a channel.
type MemberCounter interface {
	MemberCount(ctx context.Context, channelID int64) (int, error)
}

// maxConcurrentProbes bounds member-count probes issued by one sweep.
const maxConcurrentProbes = 5

// Registry holds active campaigns keyed by channel ID.
type Registry struct {
	mu        sync.Mutex
	campaigns map[int64]model.Campaign
	store     Store
	log       *slog.Logger
	now       func() time.Time
}

// NewRegistry creates an empty Registry backed by store.
func NewRegistry(store Store, log *slog.Logger) *Registry {
	return &Registry{
		campaigns: make(map[int64]model.Campaign),
		store:     store,
		log:       log,
		now:       time.Now,
	}
}

// SetClock overrides the time source (useful for testing).
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Load replaces the in-memory set with the stored campaigns.
func (r *Registry) Load(ctx context.Context) error {
	stored, err := r.store.ListCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("load campaigns: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns = make(map[int64]model.Campaign, len(stored))
	for _, c := range stored {
		r.campaigns[c.ChannelID] = c
	}
	r.log.Info("campaigns loaded", "count", len(stored))
	return nil
}

// Create validates the input and registers a new campaign for channelID.
func (r *Registry) Create(ctx context.Context, channelID int64, joinLink, durationSpec string) (model.Campaign, error) {
	if err := ValidateJoinLink(joinLink); err != nil {
		return model.Campaign{}, err
	}
	spec, err := ParseDurationSpec(durationSpec)
	if err != nil {
		return model.Campaign{}, err
	}

	now := r.now().UTC()
	c := model.Campaign{
		ChannelID: channelID,
		JoinLink:  joinLink,
		CreatedAt: now,
	}
	switch spec.Kind {
	case DurationRelative:
		c.Expiry = model.Expiry{Kind: model.ExpiryAt, At: now.Add(spec.Duration)}
	case DurationMemberLimit:
		c.Expiry = model.Expiry{Kind: model.ExpiryMemberLimit, MemberLimit: spec.MemberLimit}
	default:
		c.Expiry = model.Expiry{Kind: model.ExpiryNever}
	}

	r.mu.Lock()
	if len(r.campaigns) >= MaxCampaigns {
		r.mu.Unlock()
		return model.Campaign{}, &apperr.CapacityError{What: "active campaigns", Limit: MaxCampaigns}
	}
	if _, exists := r.campaigns[channelID]; exists {
		r.mu.Unlock()
		return model.Campaign{}, apperr.Validation("channel", "channel %d already has an active campaign, delete it first", channelID)
	}
	r.campaigns[channelID] = c
	r.mu.Unlock()

	if err := r.store.PutCampaign(ctx, c); err != nil {
		r.log.Error("persist campaign", "channel_id", channelID, "error", err)
	}
	r.log.Info("campaign created", "channel_id", channelID, "expiry", c.Expiry.Kind)
	return c, nil
}

// Delete removes the campaign of channelID. Deleting an absent campaign
// changes nothing and returns apperr.ErrNotFound.
func (r *Registry) Delete(ctx context.Context, channelID int64) error {
	r.mu.Lock()
	_, ok := r.campaigns[channelID]
	delete(r.campaigns, channelID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("campaign for %d: %w", channelID, apperr.ErrNotFound)
	}
	if err := r.store.DeleteCampaign(ctx, channelID); err != nil {
		r.log.Error("persist campaign deletion", "channel_id", channelID, "error", err)
	}
	r.log.Info("campaign deleted", "channel_id", channelID)
	return nil
}

// DeleteAll removes every campaign and returns how many there were.
func (r *Registry) DeleteAll(ctx context.Context) int {
	r.mu.Lock()
	n := len(r.campaigns)
	r.campaigns = make(map[int64]model.Campaign)
	r.mu.Unlock()

	if err := r.store.DeleteAllCampaigns(ctx); err != nil {
		r.log.Error("persist campaign wipe", "error", err)
	}
	r.log.Info("all campaigns deleted", "count", n)
	return n
}

// Get returns the active campaign of channelID.
func (r *Registry) Get(channelID int64) (model.Campaign, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[channelID]
	return c, ok
}

// Count returns the number of active campaigns.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.campaigns)
}

// ListActive returns a snapshot of active campaigns ordered by creation time.
func (r *Registry) ListActive() []model.Campaign {
	r.mu.Lock()
	out := make([]model.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		out = append(out, c)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b model.Campaign) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ChannelID, b.ChannelID)
	})
	return out
}

// SweepExpired closes every campaign whose deadline has passed or whose
// channel reached its member limit. A failing probe leaves its campaign open
// and does not affect the others.
func (r *Registry) SweepExpired(ctx context.Context, probe MemberCounter) []model.ClosedCampaign {
	now := r.now().UTC()
	active := r.ListActive()

	decisions := make([]*model.ClosedCampaign, len(active))
	var g errgroup.Group
	g.SetLimit(maxConcurrentProbes)
	for i, c := range active {
		g.Go(func() error {
			decisions[i] = r.evaluate(ctx, c, now, probe)
			return nil
		})
	}
	_ = g.Wait()

	var closed []model.ClosedCampaign
	r.mu.Lock()
	for _, d := range decisions {
		if d == nil {
			continue
		}
		current, ok := r.campaigns[d.Campaign.ChannelID]
		if !ok || !current.CreatedAt.Equal(d.Campaign.CreatedAt) {
			continue
		}
		delete(r.campaigns, d.Campaign.ChannelID)
		closed = append(closed, *d)
	}
	r.mu.Unlock()

	for _, c := range closed {
		if err := r.store.DeleteCampaign(ctx, c.Campaign.ChannelID); err != nil {
			r.log.Error("persist campaign closure", "channel_id", c.Campaign.ChannelID, "error", err)
		}
		r.log.Info("campaign closed",
			"channel_id", c.Campaign.ChannelID,
			"reason", c.Reason,
			"active_for", c.ActiveFor.Round(time.Second),
		)
	}
	return closed
}

func (r *Registry) evaluate(ctx context.Context, c model.Campaign, now time.Time, probe MemberCounter) *model.ClosedCampaign {
	switch c.Expiry.Kind {
	case model.ExpiryAt:
		if now.Before(c.Expiry.At) {
			return nil
		}
		closed := &model.ClosedCampaign{
			Campaign:  c,
			Reason:    model.ReasonTimeExpired,
			ClosedAt:  now,
			ActiveFor: now.Sub(c.CreatedAt),
		}
		if probe != nil {
			if n, err := probe.MemberCount(ctx, c.ChannelID); err == nil {
				closed.MemberCount = &n
			} else {
				r.log.Debug("final member count unavailable", "channel_id", c.ChannelID, "error", err)
			}
		}
		return closed

	case model.ExpiryMemberLimit:
		if probe == nil {
			return nil
		}
		n, err := probe.MemberCount(ctx, c.ChannelID)
		if err != nil {
			r.log.Warn("member count probe failed", "channel_id", c.ChannelID, "error", err)
			return nil
		}
		if n < c.Expiry.MemberLimit {
			return nil
		}
		return &model.ClosedCampaign{
			Campaign:    c,
			Reason:      model.ReasonLimitReached,
			ClosedAt:    now,
			ActiveFor:   now.Sub(c.CreatedAt),
			MemberCount: &n,
		}
	}
	return nil
}
