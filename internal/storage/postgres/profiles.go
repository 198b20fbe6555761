package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/rayin-translation/internal/library"
)

// GetProfile loads the profile row attached to an auth user.
func (s *Store) GetProfile(ctx context.Context, userID string) (library.Profile, error) {
	p := library.Profile{ID: userID}
	if err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(role, ''), COALESCE(username, '') FROM profiles WHERE id = $1`,
		userID,
	).Scan(&p.Role, &p.Username); err != nil {
		return library.Profile{}, notFound(err, "profile")
	}
	return p, nil
}

// CountProfiles confirms the profiles table is readable. Readiness checks call it.
func (s *Store) CountProfiles(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}
