package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voyagen/channelfold/internal/consolidate"
	"github.com/voyagen/channelfold/internal/store"
)

// CleanupNames strips provider decorations from the names of every channel
// of a source and persists the changed names. It returns how many channels
// were renamed.
func CleanupNames(ctx context.Context, s store.Store, sourceID int64) (int, error) {
	if _, err := s.GetSourceByID(ctx, sourceID); err != nil {
		return 0, err
	}
	channels, err := s.ListChannelsBySource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("ListChannelsBySource: %w", err)
	}

	renames := make(map[string]string)
	for _, ch := range channels {
		if cleaned := consolidate.CleanName(ch.Name); cleaned != ch.Name {
			renames[ch.ID] = cleaned
		}
	}
	if len(renames) == 0 {
		return 0, nil
	}
	if err := s.RenameChannels(ctx, renames); err != nil {
		return 0, fmt.Errorf("RenameChannels: %w", err)
	}
	return len(renames), nil
}

// ErrInvalidName is returned when a channel would be renamed to a blank name.
var ErrInvalidName = errors.New("channel name must not be empty")

// RenameChannel sets a channel's display name.
func RenameChannel(ctx context.Context, s store.Store, channelID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	return s.UpdateChannel(ctx, channelID, store.ChannelUpdate{Name: &name})
}

// SelectChannels marks channels for (or removes them from) the next sync.
func SelectChannels(ctx context.Context, s store.Store, channelIDs []string, selected bool) (int64, error) {
	if len(channelIDs) == 0 {
		return 0, nil
	}
	return s.SetChannelsSelected(ctx, channelIDs, selected)
}

// SyncSource pushes the selected channels of a stored source to the catalog.
func SyncSource(ctx context.Context, s store.Store, cat Catalog, sourceID int64, opts SyncOptions) (SyncReport, error) {
	if _, err := s.GetSourceByID(ctx, sourceID); err != nil {
		return SyncReport{}, err
	}
	channels, err := s.ListChannelsBySource(ctx, sourceID)
	if err != nil {
		return SyncReport{}, fmt.Errorf("ListChannelsBySource: %w", err)
	}
	return Sync(ctx, cat, channels, opts)
}
