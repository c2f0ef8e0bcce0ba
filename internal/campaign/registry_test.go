package campaign

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gate_bot/internal/apperr"
	"gate_bot/internal/model"
	"gate_bot/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockCounter struct {
	mu     sync.Mutex
	counts map[int64]int
	errs   map[int64]error
	calls  int
}

func (m *mockCounter) MemberCount(_ context.Context, channelID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.errs[channelID]; err != nil {
		return 0, err
	}
	return m.counts[channelID], nil
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock, *storage.SQLite) {
	t.Helper()
	store := newTestStore(t)
	clock := &fakeClock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	r := NewRegistry(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.SetClock(clock.Now)
	return r, clock, store
}

func TestParseDurationSpec(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    DurationSpec
		wantErr bool
	}{
		{name: "empty is never", in: "", want: DurationSpec{Kind: DurationNever}},
		{name: "w is never", in: "w", want: DurationSpec{Kind: DurationNever}},
		{name: "upper W is never", in: " W ", want: DurationSpec{Kind: DurationNever}},
		{name: "seconds", in: "30s", want: DurationSpec{Kind: DurationRelative, Duration: 30 * time.Second}},
		{name: "minutes", in: "5m", want: DurationSpec{Kind: DurationRelative, Duration: 5 * time.Minute}},
		{name: "hours", in: "1h", want: DurationSpec{Kind: DurationRelative, Duration: time.Hour}},
		{name: "days", in: "2d", want: DurationSpec{Kind: DurationRelative, Duration: 48 * time.Hour}},
		{name: "member limit", in: "1500", want: DurationSpec{Kind: DurationMemberLimit, MemberLimit: 1500}},
		{name: "max member limit", in: "50000", want: DurationSpec{Kind: DurationMemberLimit, MemberLimit: MaxMemberLimit}},
		{name: "limit over max", in: "50001", wantErr: true},
		{name: "zero limit", in: "0", wantErr: true},
		{name: "zero duration", in: "0m", wantErr: true},
		{name: "unknown unit", in: "3w", wantErr: true},
		{name: "garbage", in: "soon", wantErr: true},
		{name: "negative", in: "-5m", wantErr: true},
		{name: "overflow", in: "99999999999d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationSpec(tt.in)
			if tt.wantErr {
				var ve *apperr.ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseDurationSpec() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateJoinLink(t *testing.T) {
	tests := []struct {
		link    string
		wantErr bool
	}{
		{link: "https://t.me/script_f"},
		{link: "https://t.me/+AbCdEf123"},
		{link: "http://t.me/script_f", wantErr: true},
		{link: "https://telegram.me/x", wantErr: true},
		{link: "https://t.me/", wantErr: true},
		{link: "t.me/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			err := ValidateJoinLink(tt.link)
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Errorf("ValidateJoinLink(%q) error = %v (-want +got):\n%s", tt.link, err, diff)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("relative duration stores absolute deadline", func(t *testing.T) {
		r, clock, _ := newTestRegistry(t)
		c, err := r.Create(ctx, -100, "https://t.me/chan", "30m")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		want := model.Campaign{
			ChannelID: -100,
			JoinLink:  "https://t.me/chan",
			Expiry:    model.Expiry{Kind: model.ExpiryAt, At: clock.Now().Add(30 * time.Minute)},
			CreatedAt: clock.Now(),
		}
		if diff := cmp.Diff(want, c); diff != "" {
			t.Errorf("Create() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("member limit", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)
		c, err := r.Create(ctx, -100, "https://t.me/chan", "250")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if diff := cmp.Diff(model.Expiry{Kind: model.ExpiryMemberLimit, MemberLimit: 250}, c.Expiry); diff != "" {
			t.Errorf("expiry mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("bad link leaves state untouched", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)
		_, err := r.Create(ctx, -100, "https://example.com/chan", "w")
		var ve *apperr.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if diff := cmp.Diff(0, r.Count()); diff != "" {
			t.Errorf("count (-want +got):\n%s", diff)
		}
	})

	t.Run("duplicate channel rejected", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)
		if _, err := r.Create(ctx, -100, "https://t.me/chan", "w"); err != nil {
			t.Fatalf("first create: %v", err)
		}
		_, err := r.Create(ctx, -100, "https://t.me/other", "1h")
		var ve *apperr.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		got, _ := r.Get(-100)
		if diff := cmp.Diff("https://t.me/chan", got.JoinLink); diff != "" {
			t.Errorf("campaign was modified (-want +got):\n%s", diff)
		}
	})
}

func TestCreateCapacity(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	for i := range MaxCampaigns {
		if _, err := r.Create(ctx, int64(-1000-i), "https://t.me/c", "w"); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	before := r.ListActive()

	_, err := r.Create(ctx, -5000, "https://t.me/c", "w")
	if !errors.Is(err, apperr.ErrCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if diff := cmp.Diff(before, r.ListActive()); diff != "" {
		t.Errorf("active set changed (-want +got):\n%s", diff)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestRegistry(t)

	for _, id := range []int64{-1, -2, -3} {
		if _, err := r.Create(ctx, id, "https://t.me/c", "w"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if err := r.Delete(ctx, -2); err != nil {
		t.Fatalf("Delete(-2): %v", err)
	}
	if err := r.Delete(ctx, -2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Delete(-2) = %v, want ErrNotFound", err)
	}
	if err := r.Delete(ctx, -99); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete(-99) = %v, want ErrNotFound", err)
	}

	stored, _ := store.ListCampaigns(ctx)
	if diff := cmp.Diff(2, len(stored)); diff != "" {
		t.Errorf("stored count (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(2, r.DeleteAll(ctx)); diff != "" {
		t.Errorf("DeleteAll count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, r.DeleteAll(ctx)); diff != "" {
		t.Errorf("second DeleteAll count (-want +got):\n%s", diff)
	}
	stored, _ = store.ListCampaigns(ctx)
	if diff := cmp.Diff(0, len(stored)); diff != "" {
		t.Errorf("stored count after wipe (-want +got):\n%s", diff)
	}
}

func TestListActiveOrder(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newTestRegistry(t)

	for _, id := range []int64{-30, -10, -20} {
		if _, err := r.Create(ctx, id, "https://t.me/c", "w"); err != nil {
			t.Fatalf("create: %v", err)
		}
		clock.Advance(time.Second)
	}

	var ids []int64
	for _, c := range r.ListActive() {
		ids = append(ids, c.ChannelID)
	}
	if diff := cmp.Diff([]int64{-30, -10, -20}, ids); diff != "" {
		t.Errorf("ListActive order (-want +got):\n%s", diff)
	}
}

func TestSweepTimeExpiry(t *testing.T) {
	ctx := context.Background()
	r, clock, store := newTestRegistry(t)
	probe := &mockCounter{counts: map[int64]int{-1: 321}}

	if _, err := r.Create(ctx, -1, "https://t.me/c", "10m"); err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(10*time.Minute - time.Nanosecond)
	if closed := r.SweepExpired(ctx, probe); len(closed) != 0 {
		t.Fatalf("closed before deadline: %+v", closed)
	}

	clock.Advance(time.Nanosecond)
	closed := r.SweepExpired(ctx, probe)
	if diff := cmp.Diff(1, len(closed)); diff != "" {
		t.Fatalf("closed count (-want +got):\n%s", diff)
	}
	got := closed[0]
	if diff := cmp.Diff(model.ReasonTimeExpired, got.Reason); diff != "" {
		t.Errorf("reason (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(10*time.Minute, got.ActiveFor); diff != "" {
		t.Errorf("active for (-want +got):\n%s", diff)
	}
	if got.MemberCount == nil || *got.MemberCount != 321 {
		t.Errorf("member count = %v, want 321", got.MemberCount)
	}
	if r.Count() != 0 {
		t.Errorf("campaign still active after closure")
	}
	stored, _ := store.ListCampaigns(ctx)
	if diff := cmp.Diff(0, len(stored)); diff != "" {
		t.Errorf("stored count (-want +got):\n%s", diff)
	}
}

func TestSweepTimeExpiryProbeFailureStillCloses(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newTestRegistry(t)
	probe := &mockCounter{errs: map[int64]error{-1: errors.New("timeout")}}

	if _, err := r.Create(ctx, -1, "https://t.me/c", "1s"); err != nil {
		t.Fatalf("create: %v", err)
	}
	clock.Advance(time.Hour)

	closed := r.SweepExpired(ctx, probe)
	if diff := cmp.Diff(1, len(closed)); diff != "" {
		t.Fatalf("closed count (-want +got):\n%s", diff)
	}
	if closed[0].MemberCount != nil {
		t.Errorf("member count = %d, want nil", *closed[0].MemberCount)
	}
}

func TestSweepMemberLimit(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	for _, id := range []int64{-1, -2, -3, -4} {
		if _, err := r.Create(ctx, id, "https://t.me/c", "100"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := r.Create(ctx, -5, "https://t.me/c", "w"); err != nil {
		t.Fatalf("create: %v", err)
	}

	probe := &mockCounter{
		counts: map[int64]int{-1: 99, -2: 100, -3: 5000},
		errs:   map[int64]error{-4: errors.New("chat not found")},
	}
	closed := r.SweepExpired(ctx, probe)

	var ids []int64
	for _, c := range closed {
		ids = append(ids, c.Campaign.ChannelID)
		if c.Reason != model.ReasonLimitReached {
			t.Errorf("channel %d reason = %s, want %s", c.Campaign.ChannelID, c.Reason, model.ReasonLimitReached)
		}
	}
	if diff := cmp.Diff([]int64{-3, -2}, ids); diff != "" {
		t.Errorf("closed channels (-want +got):\n%s", diff)
	}

	var remaining []int64
	for _, c := range r.ListActive() {
		remaining = append(remaining, c.ChannelID)
	}
	if diff := cmp.Diff([]int64{-5, -4, -1}, remaining); diff != "" {
		t.Errorf("remaining channels (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(4, probe.calls); diff != "" {
		t.Errorf("probe calls; never-expiring campaigns must not be probed (-want +got):\n%s", diff)
	}
}

func TestSweepSkipsRecreatedCampaign(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	if _, err := r.Create(ctx, -1, "https://t.me/c", "10"); err != nil {
		t.Fatalf("create: %v", err)
	}

	probe := &recreatingCounter{registry: r}
	closed := r.SweepExpired(ctx, probe)
	if len(closed) != 0 {
		t.Fatalf("closed a campaign that was replaced during the sweep: %+v", closed)
	}
	got, ok := r.Get(-1)
	if !ok || got.Expiry.Kind != model.ExpiryNever {
		t.Errorf("replacement campaign missing: %+v", got)
	}
}

// recreatingCounter replaces the campaign while its probe is in flight.
type recreatingCounter struct {
	registry *Registry
}

func (c *recreatingCounter) MemberCount(ctx context.Context, channelID int64) (int, error) {
	_ = c.registry.Delete(ctx, channelID)
	c.registry.SetClock(func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) })
	if _, err := c.registry.Create(ctx, channelID, "https://t.me/new", "w"); err != nil {
		return 0, err
	}
	return 1000, nil
}

func TestLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, _, store := newTestRegistry(t)

	for _, args := range []struct {
		id   int64
		spec string
	}{{-1, "45m"}, {-2, "777"}, {-3, "w"}} {
		if _, err := r.Create(ctx, args.id, "https://t.me/c", args.spec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	reloaded := NewRegistry(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(r.ListActive(), reloaded.ListActive()); diff != "" {
		t.Errorf("reloaded campaigns mismatch (-want +got):\n%s", diff)
	}
}
