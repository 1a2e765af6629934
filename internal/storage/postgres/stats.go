package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type LinkStats struct {
	LinkID              string `json:"link_id"`
	Clicks              int64  `json:"clicks"`
	WorkspaceID         string `json:"workspace_id"`
	WorkspaceLinkUsage  int64  `json:"workspace_link_usage"`
	WorkspaceEventUsage int64  `json:"workspace_event_usage"`
}

const linkStatsSQL = `
SELECT l.id, l.clicks, w.id, w.link_usage, w.event_usage
FROM links l
JOIN workspaces w ON w.id = l.workspace_id
WHERE l.id = $1 AND l.deleted_at IS NULL`

// QueryLinkStats reads a live link's click counter and its workspace usage.
// Deleted links are ErrNotFound, as on redirect.
func (db *DB) QueryLinkStats(ctx context.Context, linkID string) (LinkStats, error) {
	var res LinkStats
	err := db.Pool.QueryRow(ctx, linkStatsSQL, linkID).Scan(
		&res.LinkID, &res.Clicks, &res.WorkspaceID, &res.WorkspaceLinkUsage, &res.WorkspaceEventUsage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return res, fmt.Errorf("link %s: %w", linkID, ErrNotFound)
	}
	if err != nil {
		return res, fmt.Errorf("scan link stats: %w", err)
	}
	return res, nil
}
