package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const AgencySettingsTable = "agency_settings"

// ErrSettingNotFound indicates an agency has no stored value for a key.
var ErrSettingNotFound = errors.New("agency setting not found")

// AgencySettingsStore reads and writes the per-agency key/value configuration
// rows (provider API keys, default sender identity, ...). Every access is keyed
// by agency id; there is no unscoped read path.
type AgencySettingsStore struct {
	pool *pgxpool.Pool
}

// NewAgencySettingsStore constructs the store.
func NewAgencySettingsStore(pool *pgxpool.Pool) (*AgencySettingsStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &AgencySettingsStore{pool: pool}, nil
}

// Get returns the stored value for (agencyID, key) or ErrSettingNotFound.
func (s *AgencySettingsStore) Get(ctx context.Context, agencyID uuid.UUID, key string) (string, error) {
	if agencyID == uuid.Nil {
		return "", errors.New("agency id is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("setting key is required")
	}

	var value string
	err := s.pool.QueryRow(ctx, `
		SELECT value
		FROM agency_settings
		WHERE agency_id = $1 AND key = $2
	`, agencyID, key).Scan(&value)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", ErrSettingNotFound
	default:
		return "", fmt.Errorf("read agency setting %q: %w", key, err)
	}
}

// Set upserts the value for (agencyID, key).
func (s *AgencySettingsStore) Set(ctx context.Context, agencyID uuid.UUID, key, value string) error {
	if agencyID == uuid.Nil {
		return errors.New("agency id is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key is required")
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO agency_settings (agency_id, key, value, created_date, updated_date)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (agency_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_date = NOW()
	`, agencyID, key, value); err != nil {
		return fmt.Errorf("upsert agency setting %q: %w", key, err)
	}

	return nil
}
