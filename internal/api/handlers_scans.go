package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jedp/fptv/internal/db"
	"github.com/jedp/fptv/internal/services"
)

// triggerScan starts a scan run. Runs are exclusive; a second trigger
// while one is active gets 409 with the active run's ID.
func (s *RESTServer) triggerScan(c *gin.Context) {
	var req struct {
		DryRun bool `json:"dry_run"`
	}
	// Body is optional; an empty POST starts a normal run.
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			respondBadRequest(c, err, true)
			return
		}
	}

	runID, err := s.runner.StartRun("api", req.DryRun)
	if errors.Is(err, services.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "A scan run is already in progress",
			"run_id": s.runner.Status().RunID,
		})
		return
	}
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, "Failed to start scan", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":  runID,
		"dry_run": req.DryRun,
		"message": "Scan started",
	})
}

func (s *RESTServer) getScanStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Status())
}

func (s *RESTServer) cancelScan(c *gin.Context) {
	if !s.runner.CancelRun() {
		c.JSON(http.StatusConflict, gin.H{"error": "No scan run is active"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cancellation requested"})
}

func (s *RESTServer) listScanRuns(c *gin.Context) {
	p := ParsePagination(c, 50, 500)

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM scan_runs").Scan(&total); err != nil {
		respondDatabaseError(c, err)
		return
	}

	rows, err := s.db.Query(`
        SELECT id, triggered_by, dry_run, status, error,
               muxes_created, muxes_failed, services_mapped,
               channels_created, channels_merged, channels_deleted, services_pruned,
               started_at, completed_at
        FROM scan_runs
        ORDER BY started_at DESC
        LIMIT ? OFFSET ?
    `, p.Limit, p.Offset)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	defer rows.Close()

	runs := make([]db.ScanRun, 0)
	for rows.Next() {
		var run db.ScanRun
		var errMsg sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.TriggeredBy, &run.DryRun, &run.Status, &errMsg,
			&run.MuxesCreated, &run.MuxesFailed, &run.ServicesMapped,
			&run.ChannelsCreated, &run.ChannelsMerged, &run.ChannelsDeleted, &run.ServicesPruned,
			&run.StartedAt, &completedAt); err != nil {
			respondDatabaseError(c, err)
			return
		}
		run.Error = errMsg.String
		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":       runs,
		"pagination": NewPaginationResponse(p, total),
	})
}

func (s *RESTServer) getScanRun(c *gin.Context) {
	runID := c.Param("run_id")

	run, err := s.runRepo().GetScanRun(runID)
	if errors.Is(err, sql.ErrNoRows) {
		respondNotFound(c, "Scan run")
		return
	}
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	phases, err := s.runRepo().ListPhases(runID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":    run,
		"phases": phases,
	})
}

func (s *RESTServer) getScanRunEvents(c *gin.Context) {
	runID := c.Param("run_id")

	rows, err := s.db.Query(`
        SELECT id, event_type, event_data, created_at
        FROM events
        WHERE aggregate_type = 'scan' AND aggregate_id = ?
        ORDER BY id
    `, runID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	defer rows.Close()

	events := make([]gin.H, 0)
	for rows.Next() {
		var id int64
		var eventType, eventData string
		var createdAt sql.NullTime
		if err := rows.Scan(&id, &eventType, &eventData, &createdAt); err != nil {
			respondDatabaseError(c, err)
			return
		}
		events = append(events, gin.H{
			"id":         id,
			"event_type": eventType,
			"event_data": json.RawMessage(eventData),
			"created_at": createdAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

// runRepo wraps the shared sql.DB in the repository helper type so
// handlers reuse its row mapping.
func (s *RESTServer) runRepo() *db.Repository {
	return &db.Repository{DB: s.db}
}
