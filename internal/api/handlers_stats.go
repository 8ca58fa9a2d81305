package api

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
)

// getDashboardStats aggregates run history for the dashboard: totals
// by status, channel churn, and the most recent run outcome.
func (s *RESTServer) getDashboardStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats := gin.H{}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM scan_runs GROUP BY status")
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	defer rows.Close()

	byStatus := gin.H{}
	total := 0
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			respondDatabaseError(c, err)
			return
		}
		byStatus[status] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		respondDatabaseError(c, err)
		return
	}
	stats["runs_total"] = total
	stats["runs_by_status"] = byStatus

	var created, merged, deleted, pruned sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
        SELECT SUM(channels_created), SUM(channels_merged), SUM(channels_deleted), SUM(services_pruned)
        FROM scan_runs WHERE status = 'completed'
    `).Scan(&created, &merged, &deleted, &pruned)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	stats["channels_created"] = created.Int64
	stats["channels_merged"] = merged.Int64
	stats["channels_deleted"] = deleted.Int64
	stats["services_pruned"] = pruned.Int64

	if runs, err := s.runRepo().ListScanRuns(1); err == nil && len(runs) > 0 {
		stats["last_run"] = runs[0]
	}

	stats["scan"] = s.runner.Status()

	c.JSON(http.StatusOK, stats)
}
