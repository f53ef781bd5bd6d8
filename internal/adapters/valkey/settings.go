// Package valkey persists the layer-settings snapshot in Valkey under one
// well-known key, with change notifications over a companion pub/sub channel.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/valkey-io/valkey-go"

	"github.com/transitlens/transitlens/internal/core/domain"
)

const (
	settingsKey     = "transitlens:settings"
	settingsChannel = "transitlens:settings:changed"
)

// Store implements ports.SettingsStore.
type Store struct {
	client valkey.Client
}

// New creates a new Valkey-backed settings store.
func New(addr string) (*Store, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Store{client: client}, nil
}

// Load returns the stored snapshot merged onto defaults; a missing key
// yields the defaults.
func (s *Store) Load(ctx context.Context) (domain.LayerSettings, error) {
	settings := domain.DefaultSettings()

	cmd := s.client.Do(ctx, s.client.B().Get().Key(settingsKey).Build())
	if err := cmd.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("get settings: %w", err)
	}
	data, err := cmd.AsBytes()
	if err != nil {
		return settings, fmt.Errorf("read settings: %w", err)
	}
	// Unmarshal onto defaults so keys missing from an older snapshot keep
	// their default values.
	if err := json.Unmarshal(data, &settings); err != nil {
		return domain.DefaultSettings(), fmt.Errorf("decode settings: %w", err)
	}
	return settings.Clamp(), nil
}

// Save replaces the stored snapshot and notifies watchers.
func (s *Store) Save(ctx context.Context, settings domain.LayerSettings) error {
	data, err := json.Marshal(settings.Clamp())
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(settingsKey).Value(string(data)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("set settings: %w", err)
	}
	if err := s.client.Do(ctx,
		s.client.B().Publish().Channel(settingsChannel).Message(string(data)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("notify settings change: %w", err)
	}
	return nil
}

// Watch invokes fn with each published snapshot until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, fn func(domain.LayerSettings)) error {
	return s.client.Receive(ctx,
		s.client.B().Subscribe().Channel(settingsChannel).Build(),
		func(msg valkey.PubSubMessage) {
			settings := domain.DefaultSettings()
			if err := json.Unmarshal([]byte(msg.Message), &settings); err != nil {
				slog.Warn("bad settings notification", "error", err)
				return
			}
			fn(settings.Clamp())
		},
	)
}

// Close releases the client.
func (s *Store) Close() {
	s.client.Close()
}
