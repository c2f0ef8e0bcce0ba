package verifier

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
)

type staticCampaigns []model.Campaign

func (s staticCampaigns) ListActive() []model.Campaign {
	return s
}

type answer struct {
	status model.MemberStatus
	err    error
	delay  time.Duration
}

type mockOracle struct {
	mu      sync.Mutex
	answers map[int64]answer
	queried []int64
}

func (m *mockOracle) MembershipStatus(ctx context.Context, _ int64, channelID int64) (model.MemberStatus, error) {
	m.mu.Lock()
	m.queried = append(m.queried, channelID)
	a := m.answers[channelID]
	m.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", &apperr.OracleError{ChannelID: channelID, Err: ctx.Err()}
		}
	}
	return a.status, a.err
}

func campaigns(ids ...int64) staticCampaigns {
	out := make(staticCampaigns, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Campaign{ChannelID: id, JoinLink: "https://t.me/c"})
	}
	return out
}

func newTestVerifier(cs CampaignLister, o Oracle) *Verifier {
	return New(cs, o, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestUnsatisfiedChannels(t *testing.T) {
	tests := []struct {
		name    string
		answers map[int64]answer
		want    []int64
	}{
		{
			name: "all satisfied",
			answers: map[int64]answer{
				1: {status: model.StatusMember},
				2: {status: model.StatusAdministrator},
				3: {status: model.StatusCreator},
			},
			want: nil,
		},
		{
			name: "left and kicked are unsatisfied",
			answers: map[int64]answer{
				1: {status: model.StatusLeft},
				2: {status: model.StatusMember},
				3: {status: model.StatusKicked},
			},
			want: []int64{1, 3},
		},
		{
			name: "restricted is unsatisfied",
			answers: map[int64]answer{
				1: {status: model.StatusMember},
				2: {status: model.StatusRestricted},
				3: {status: model.StatusMember},
			},
			want: []int64{2},
		},
		{
			name: "not found fails closed",
			answers: map[int64]answer{
				1: {err: &apperr.OracleError{ChannelID: 1, NotFound: true, Err: errors.New("Bad Request: user not found")}},
				2: {status: model.StatusMember},
				3: {status: model.StatusMember},
			},
			want: []int64{1},
		},
		{
			name: "transient error fails closed without hiding others",
			answers: map[int64]answer{
				1: {status: model.StatusMember},
				2: {err: errors.New("connection reset")},
				3: {status: model.StatusLeft},
			},
			want: []int64{2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(campaigns(1, 2, 3), &mockOracle{answers: tt.answers})
			got := v.UnsatisfiedChannels(context.Background(), 42)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("UnsatisfiedChannels() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnsatisfiedNoCampaigns(t *testing.T) {
	oracle := &mockOracle{}
	v := newTestVerifier(campaigns(), oracle)

	if got := v.Unsatisfied(context.Background(), 1); got != nil {
		t.Errorf("Unsatisfied() = %v, want nil", got)
	}
	if len(oracle.queried) != 0 {
		t.Errorf("oracle queried %v with no campaigns", oracle.queried)
	}
}

func TestUnsatisfiedTimeoutFailsClosed(t *testing.T) {
	oracle := &mockOracle{answers: map[int64]answer{
		1: {status: model.StatusMember, delay: time.Second},
		2: {status: model.StatusMember},
	}}
	v := newTestVerifier(campaigns(1, 2), oracle)
	v.SetTimeout(20 * time.Millisecond)

	got := v.UnsatisfiedChannels(context.Background(), 7)
	if diff := cmp.Diff([]int64{1}, got); diff != "" {
		t.Errorf("UnsatisfiedChannels() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnsatisfiedPreservesOrder(t *testing.T) {
	answers := make(map[int64]answer)
	ids := []int64{9, 3, 7, 1, 5, 8, 2}
	for _, id := range ids {
		answers[id] = answer{status: model.StatusLeft, delay: time.Duration(10-id) * time.Millisecond}
	}
	v := newTestVerifier(campaigns(ids...), &mockOracle{answers: answers})

	got := v.UnsatisfiedChannels(context.Background(), 1)
	if diff := cmp.Diff(ids, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}
