package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/attribution/internal/domain"
)

const linkSnapshotSQL = `
SELECT l.id, l.workspace_id, COALESCE(l.domain, ''), COALESCE(l.key, ''), l.url,
       l.remarketing, l.custom_meta_tags, p.pixel_id, p.access_token
FROM links l
LEFT JOIN meta_pixels p ON p.workspace_id = l.workspace_id AND p.enabled
WHERE l.id = $1 AND l.deleted_at IS NULL
ORDER BY p.created_at ASC
LIMIT 1`

// GetLink returns the link snapshot consumed by the click pipeline, with the
// workspace's first enabled advertising pixel when one exists.
func (db *DB) GetLink(ctx context.Context, id string) (*domain.Link, error) {
	var (
		l           domain.Link
		pixelID     *string
		accessToken *string
	)
	err := db.Pool.QueryRow(ctx, linkSnapshotSQL, id).Scan(
		&l.ID, &l.WorkspaceID, &l.Domain, &l.Key, &l.URL,
		&l.Remarketing, &l.CustomMetaTags, &pixelID, &accessToken,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("link %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan link: %w", err)
	}
	if pixelID != nil && accessToken != nil {
		l.Pixel = &domain.AdPixel{ID: *pixelID, AccessToken: *accessToken}
	}
	return &l, nil
}
