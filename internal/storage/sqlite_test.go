package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"gate_bot/internal/model"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	for _, id := range []int64{30, 10, 20, 10} {
		if err := s.AddUser(ctx, id); err != nil {
			t.Fatalf("add user %d: %v", id, err)
		}
	}

	got, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if diff := cmp.Diff([]int64{10, 20, 30}, got); diff != "" {
		t.Errorf("ListUsers mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteUser(ctx, 20); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := s.DeleteUser(ctx, 999); err != nil {
		t.Fatalf("delete missing user: %v", err)
	}

	got, err = s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if diff := cmp.Diff([]int64{10, 30}, got); diff != "" {
		t.Errorf("ListUsers after delete mismatch (-want +got):\n%s", diff)
	}
}

func TestCampaignRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	created := time.Date(2026, 3, 1, 12, 30, 15, 123456789, time.UTC)
	campaigns := []model.Campaign{
		{
			ChannelID: -1001,
			JoinLink:  "https://t.me/alpha",
			Expiry:    model.Expiry{Kind: model.ExpiryAt, At: created.Add(90 * time.Minute)},
			CreatedAt: created,
		},
		{
			ChannelID: -1002,
			JoinLink:  "https://t.me/beta",
			Expiry:    model.Expiry{Kind: model.ExpiryMemberLimit, MemberLimit: 5000},
			CreatedAt: created.Add(time.Second),
		},
		{
			ChannelID: -1003,
			JoinLink:  "https://t.me/+invite",
			Expiry:    model.Expiry{Kind: model.ExpiryNever},
			CreatedAt: created.Add(2 * time.Second),
		},
	}
	for _, c := range campaigns {
		if err := s.PutCampaign(ctx, c); err != nil {
			t.Fatalf("put campaign %d: %v", c.ChannelID, err)
		}
	}

	got, err := s.ListCampaigns(ctx)
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if diff := cmp.Diff(campaigns, got); diff != "" {
		t.Errorf("ListCampaigns mismatch (-want +got):\n%s", diff)
	}
}

func TestPutCampaignReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := model.Campaign{ChannelID: 1, JoinLink: "https://t.me/a", Expiry: model.Expiry{Kind: model.ExpiryNever}, CreatedAt: now}
	second := model.Campaign{ChannelID: 1, JoinLink: "https://t.me/b", Expiry: model.Expiry{Kind: model.ExpiryMemberLimit, MemberLimit: 10}, CreatedAt: now}

	if err := s.PutCampaign(ctx, first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := s.PutCampaign(ctx, second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	got, err := s.ListCampaigns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]model.Campaign{second}, got); diff != "" {
		t.Errorf("ListCampaigns mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteCampaigns(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	now := time.Now().UTC()
	for _, id := range []int64{1, 2, 3} {
		c := model.Campaign{ChannelID: id, JoinLink: "https://t.me/x", Expiry: model.Expiry{Kind: model.ExpiryNever}, CreatedAt: now}
		if err := s.PutCampaign(ctx, c); err != nil {
			t.Fatalf("put campaign: %v", err)
		}
	}

	if err := s.DeleteCampaign(ctx, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteCampaign(ctx, 42); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	got, _ := s.ListCampaigns(ctx)
	if diff := cmp.Diff(2, len(got)); diff != "" {
		t.Errorf("campaign count after delete (-want +got):\n%s", diff)
	}

	if err := s.DeleteAllCampaigns(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	got, _ = s.ListCampaigns(ctx)
	if diff := cmp.Diff(0, len(got)); diff != "" {
		t.Errorf("campaign count after delete all (-want +got):\n%s", diff)
	}
}

func TestContentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	created := time.Date(2026, 5, 2, 8, 0, 0, 42, time.UTC)
	entries := []model.ContentEntry{
		{
			Code: "abc123",
			Payload: model.Payload{
				Kind:    model.PayloadText,
				Body:    "<code>print(1)</code>\nhello &amp; bye",
				Buttons: []model.Button{{Label: "Site", URL: "https://example.com"}},
			},
			CreatedAt: created,
		},
		{
			Code:      "Zz-9-photo",
			Payload:   model.Payload{Kind: model.PayloadPhoto, Body: "AgACAgIAAxkBAAIB", Caption: "look"},
			Password:  "s3cret",
			CreatedAt: created.Add(time.Minute),
		},
	}
	for _, e := range entries {
		if err := s.PutContent(ctx, e); err != nil {
			t.Fatalf("put content %s: %v", e.Code, err)
		}
	}

	got, err := s.ListContent(ctx)
	if err != nil {
		t.Fatalf("list content: %v", err)
	}
	if diff := cmp.Diff(entries, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("ListContent mismatch (-want +got):\n%s", diff)
	}
}

func TestPutContentDuplicateCode(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	e := model.ContentEntry{Code: "dup-code", Payload: model.Payload{Kind: model.PayloadText, Body: "a"}, CreatedAt: time.Now()}
	if err := s.PutContent(ctx, e); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := s.PutContent(ctx, e); err == nil {
		t.Fatal("expected error on duplicate code, got nil")
	}
}
