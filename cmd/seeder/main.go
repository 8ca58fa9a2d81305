// Command seeder populates a development database with plausible run
// history so the dashboard and API have data to show without a real
// TVHeadend backend.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	db, err := sql.Open("sqlite3", "./fptv.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	fmt.Println("Seeding database...")

	runs := []struct {
		Trigger         string
		Status          string
		Error           string
		MuxesCreated    int
		MuxesFailed     int
		ServicesMapped  int
		ChannelsCreated int
		ChannelsMerged  int
		ChannelsDeleted int
		ServicesPruned  int
		StartedAt       time.Time
		CompletedAt     time.Time
	}{
		{"cron", "completed", "", 35, 0, 22, 22, 0, 0, 0, time.Now().Add(-72 * time.Hour), time.Now().Add(-72*time.Hour + 9*time.Minute)},
		{"cron", "completed", "", 0, 2, 23, 1, 2, 3, 4, time.Now().Add(-48 * time.Hour), time.Now().Add(-48*time.Hour + 8*time.Minute)},
		{"api", "failed", "network \"ATSC OTA\" not found", 0, 0, 0, 0, 0, 0, 0, time.Now().Add(-24 * time.Hour), time.Now().Add(-24*time.Hour + 5*time.Second)},
		{"cli", "completed", "", 0, 0, 23, 0, 0, 0, 0, time.Now().Add(-6 * time.Hour), time.Now().Add(-6*time.Hour + 7*time.Minute)},
	}

	runIDs := make([]string, 0, len(runs))
	for _, r := range runs {
		id := uuid.New().String()
		runIDs = append(runIDs, id)
		var errVal interface{}
		if r.Error != "" {
			errVal = r.Error
		}
		_, err := db.Exec(`
            INSERT INTO scan_runs
                (id, triggered_by, dry_run, status, error,
                 muxes_created, muxes_failed, services_mapped,
                 channels_created, channels_merged, channels_deleted, services_pruned,
                 started_at, completed_at)
            VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, r.Trigger, r.Status, errVal,
			r.MuxesCreated, r.MuxesFailed, r.ServicesMapped,
			r.ChannelsCreated, r.ChannelsMerged, r.ChannelsDeleted, r.ServicesPruned,
			r.StartedAt.UTC(), r.CompletedAt.UTC())
		if err != nil {
			log.Printf("Failed to insert run: %v", err)
		}
	}

	// Phases for the most recent full cron run
	phases := []struct {
		Phase  string
		OK     int
		Failed int
	}{
		{"frontends", 2, 0},
		{"wipe", 0, 0},
		{"provision", 35, 0},
		{"scan", 33, 2},
		{"orphans", 1, 0},
		{"reconcile", 23, 0},
		{"placeholders", 2, 0},
		{"dedupe", 2, 0},
		{"prune", 4, 0},
	}
	phaseStart := runs[1].StartedAt
	for i, p := range phases {
		started := phaseStart.Add(time.Duration(i) * 40 * time.Second)
		completed := started.Add(35 * time.Second)
		status := "completed"
		if p.Failed > 0 {
			status = "failed"
		}
		_, err := db.Exec(`
            INSERT INTO scan_phases (run_id, phase, status, ok_count, failed_count, started_at, completed_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runIDs[1], p.Phase, status, p.OK, p.Failed, started.UTC(), completed.UTC())
		if err != nil {
			log.Printf("Failed to insert phase: %v", err)
		}
	}

	// Event stream for the same run
	events := []struct {
		Type string
		Data map[string]interface{}
	}{
		{"ScanStarted", map[string]interface{}{
			"run_id": runIDs[1], "trigger": "cron", "dry_run": false, "network": "ATSC OTA",
		}},
		{"ChannelsReconciled", map[string]interface{}{
			"run_id": runIDs[1], "created": 1,
		}},
		{"ChannelsDeduped", map[string]interface{}{
			"run_id": runIDs[1], "merged_groups": 2, "deleted": 2,
		}},
		{"ChannelsPruned", map[string]interface{}{
			"run_id": runIDs[1], "channels_deleted": 1, "links_removed": 4,
			"reasons": map[string]interface{}{"missing": 3, "not-oked": 1},
		}},
		{"ScanCompleted", map[string]interface{}{
			"run_id": runIDs[1], "trigger": "cron", "dry_run": false,
			"muxes_ok": 33, "muxes_fail": 2,
			"channels_created": 1, "channels_merged": 2, "channels_deleted": 3,
		}},
	}
	for _, e := range events {
		data, _ := json.Marshal(e.Data)
		_, err := db.Exec(`
            INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data)
            VALUES ('scan', ?, ?, ?)`,
			runIDs[1], e.Type, string(data))
		if err != nil {
			log.Printf("Failed to insert event: %v", err)
		}
	}

	// A nightly schedule
	_, err = db.Exec(`
        INSERT INTO scan_schedules (cron_expression, enabled, dry_run)
        VALUES ('0 3 * * *', 1, 0)`)
	if err != nil {
		log.Printf("Failed to insert schedule: %v", err)
	}

	fmt.Printf("Seeded %d runs, %d phases, %d events, 1 schedule\n",
		len(runs), len(phases), len(events))
}
