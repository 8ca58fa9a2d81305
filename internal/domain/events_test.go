package domain

import "testing"

func TestGetString(t *testing.T) {
	e := &Event{EventData: map[string]interface{}{"run_id": "abc", "count": 3}}

	if v, ok := e.GetString("run_id"); !ok || v != "abc" {
		t.Errorf("GetString(run_id) = %q, %v; want abc, true", v, ok)
	}
	if _, ok := e.GetString("count"); ok {
		t.Error("GetString on non-string field should return false")
	}
	if _, ok := e.GetString("missing"); ok {
		t.Error("GetString on missing field should return false")
	}

	nilEvent := &Event{}
	if _, ok := nilEvent.GetString("any"); ok {
		t.Error("GetString on nil EventData should return false")
	}
}

func TestGetInt64_NumericVariants(t *testing.T) {
	// JSON round-trips produce float64; direct construction may use int or int64.
	e := &Event{EventData: map[string]interface{}{
		"f": float64(42),
		"i": 7,
		"l": int64(9),
		"s": "nope",
	}}

	for key, want := range map[string]int64{"f": 42, "i": 7, "l": 9} {
		if v, ok := e.GetInt64(key); !ok || v != want {
			t.Errorf("GetInt64(%s) = %d, %v; want %d, true", key, v, ok, want)
		}
	}
	if _, ok := e.GetInt64("s"); ok {
		t.Error("GetInt64 on string field should return false")
	}
	if v := e.GetInt64Or("missing", 99); v != 99 {
		t.Errorf("GetInt64Or default = %d; want 99", v)
	}
}

func TestGetBool(t *testing.T) {
	e := &Event{EventData: map[string]interface{}{"dry_run": true}}

	if v, ok := e.GetBool("dry_run"); !ok || !v {
		t.Error("GetBool(dry_run) should return true, true")
	}
	if v := e.GetBoolOr("missing", true); !v {
		t.Error("GetBoolOr should return default for missing key")
	}
}

func TestParseScanRunEventData(t *testing.T) {
	e := &Event{
		EventType: ScanCompleted,
		EventData: map[string]interface{}{
			"run_id":  "run-1",
			"trigger": "cron",
			"dry_run": true,
		},
	}

	data, ok := e.ParseScanRunEventData()
	if !ok {
		t.Fatal("ParseScanRunEventData should succeed")
	}
	if data.RunID != "run-1" || data.Trigger != "cron" || !data.DryRun {
		t.Errorf("unexpected data: %+v", data)
	}

	missing := &Event{EventData: map[string]interface{}{"trigger": "api"}}
	if _, ok := missing.ParseScanRunEventData(); ok {
		t.Error("ParseScanRunEventData without run_id should fail")
	}
}

func TestParsePhaseEventData(t *testing.T) {
	e := &Event{
		EventType: ScanProgress,
		EventData: map[string]interface{}{
			"run_id":  "run-2",
			"phase":   "poll",
			"message": "scanning",
			"active":  float64(2),
			"pending": float64(5),
			"ok":      float64(10),
			"total":   float64(20),
		},
	}

	data, ok := e.ParsePhaseEventData()
	if !ok {
		t.Fatal("ParsePhaseEventData should succeed")
	}
	if data.Phase != "poll" || data.Active != 2 || data.Pending != 5 || data.OK != 10 || data.Total != 20 {
		t.Errorf("unexpected data: %+v", data)
	}
}
