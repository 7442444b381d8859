package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hostedraids/muster/internal/domain"
)

// ChannelStore persists the per-guild events channel designation.
type ChannelStore struct {
	db *sql.DB
}

var _ domain.ChannelConfig = (*ChannelStore)(nil)

// NewChannelStore wraps an already-migrated database connection.
func NewChannelStore(db *sql.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

func (s *ChannelStore) EventsChannel(ctx context.Context, guildID string) (string, error) {
	var channelID string
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id FROM guild_channels WHERE guild_id = ?`, guildID,
	).Scan(&channelID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", domain.ErrChannelNotSet
		}
		return "", fmt.Errorf("looking up events channel: %w", err)
	}
	return channelID, nil
}

func (s *ChannelStore) SetEventsChannel(ctx context.Context, guildID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_channels (guild_id, channel_id) VALUES (?, ?)
		 ON CONFLICT (guild_id) DO UPDATE SET channel_id = excluded.channel_id`,
		guildID, channelID,
	)
	if err != nil {
		return fmt.Errorf("setting events channel: %w", err)
	}
	return nil
}
