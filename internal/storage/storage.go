// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"gate_bot/internal/model"
)

// Storage is the interface for all persistence operations.
// Each record family is loaded once at startup and then written incrementally.
type Storage interface {
	AddUser(ctx context.Context, id int64) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]int64, error)

	PutCampaign(ctx context.Context, c model.Campaign) error
	DeleteCampaign(ctx context.Context, channelID int64) error
	DeleteAllCampaigns(ctx context.Context) error
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)

	PutContent(ctx context.Context, e model.ContentEntry) error
	ListContent(ctx context.Context) ([]model.ContentEntry, error)

	Close() error
}
