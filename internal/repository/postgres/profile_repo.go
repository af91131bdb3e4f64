package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"socialhub-backend/internal/domain"
)

// ProfileRepository reads the account tables owned by the profile service
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// GetProfile looks up a principal in the users or advertisers table
func (r *ProfileRepository) GetProfile(ctx context.Context, principal domain.Principal) (*domain.Profile, error) {
	var table string
	switch principal.Kind {
	case domain.PrincipalUser:
		table = "users"
	case domain.PrincipalAdvertiser:
		table = "advertisers"
	default:
		return nil, domain.ErrInvalidPrincipalKind
	}

	query := fmt.Sprintf(`
		SELECT name, username, avatar_url, coalesce(push_token, '')
		FROM %s
		WHERE id = $1
	`, table)

	profile := &domain.Profile{Principal: principal}
	err := r.pool.QueryRow(ctx, query, principal.ID).Scan(
		&profile.Name,
		&profile.Username,
		&profile.AvatarURL,
		&profile.PushToken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}
