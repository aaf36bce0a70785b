package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/griphq/retention-engine/internal/domain"
)

// ErrCommunityNotFound is returned for lookups of unknown community IDs.
var ErrCommunityNotFound = fmt.Errorf("community not found")

func getCommunity(ctx context.Context, db *sql.DB, id string) (*domain.Community, error) {
	c := &domain.Community{}
	var settingsJSON []byte
	err := db.QueryRowContext(ctx, `
		SELECT id, whop_company_id, creator_user_id, name,
		       discord_guild_id, discord_bot_installed, telegram_bot_installed,
		       whop_chat_enabled, plan_tier, member_count, settings,
		       created_at, updated_at
		FROM communities
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.WhopCompanyID, &c.CreatorUserID, &c.Name,
		&c.DiscordGuildID, &c.DiscordBotInstalled, &c.TelegramBotInstalled,
		&c.WhopChatEnabled, &c.PlanTier, &c.MemberCount, &settingsJSON,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get community: %w", err)
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &c.Settings); err != nil {
			return nil, fmt.Errorf("decode community settings: %w", err)
		}
	}
	return c, nil
}

// CommunityRepo implements community persistence for the workers and API.
type CommunityRepo struct{ db *sql.DB }

// NewCommunityRepo creates a Postgres-backed community repository.
func NewCommunityRepo(db *sql.DB) *CommunityRepo { return &CommunityRepo{db: db} }

// Get returns one community or ErrCommunityNotFound.
func (r *CommunityRepo) Get(ctx context.Context, id string) (*domain.Community, error) {
	c, err := getCommunity(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCommunityNotFound
	}
	return c, nil
}

// ListCommunities returns every community, for the sync sweep.
func (r *CommunityRepo) ListCommunities(ctx context.Context) ([]domain.Community, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, whop_company_id, creator_user_id, name,
		       discord_guild_id, discord_bot_installed, telegram_bot_installed,
		       whop_chat_enabled, plan_tier, member_count, settings,
		       created_at, updated_at
		FROM communities
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	var out []domain.Community
	for rows.Next() {
		var c domain.Community
		var settingsJSON []byte
		if err := rows.Scan(
			&c.ID, &c.WhopCompanyID, &c.CreatorUserID, &c.Name,
			&c.DiscordGuildID, &c.DiscordBotInstalled, &c.TelegramBotInstalled,
			&c.WhopChatEnabled, &c.PlanTier, &c.MemberCount, &settingsJSON,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		if len(settingsJSON) > 0 {
			if err := json.Unmarshal(settingsJSON, &c.Settings); err != nil {
				return nil, fmt.Errorf("decode community settings: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCommunityIDs returns every community ID, for the risk sweep.
func (r *CommunityRepo) ListCommunityIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM communities ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list community ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan community id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *CommunityRepo) UpdateCommunityMemberCount(ctx context.Context, communityID string, count int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE communities SET member_count = $2, updated_at = NOW() WHERE id = $1
	`, communityID, count)
	if err != nil {
		return fmt.Errorf("update member count: %w", err)
	}
	return nil
}
