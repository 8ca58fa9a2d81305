package domain

import (
	"time"
)

type EventType string

const (
	ScanStarted        EventType = "ScanStarted"
	ScanPhaseCompleted EventType = "ScanPhaseCompleted"
	ScanProgress       EventType = "ScanProgress"
	ScanCompleted      EventType = "ScanCompleted"
	ScanFailed         EventType = "ScanFailed"

	FrontendsConfigured EventType = "FrontendsConfigured"
	MuxesProvisioned    EventType = "MuxesProvisioned"
	ChannelsReconciled  EventType = "ChannelsReconciled"
	ChannelsDeduped     EventType = "ChannelsDeduped"
	ChannelsCleaned     EventType = "ChannelsCleaned"
	ChannelsPruned      EventType = "ChannelsPruned"

	NotificationSent   EventType = "NotificationSent"
	NotificationFailed EventType = "NotificationFailed"
)

type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	EventVersion  int                    `json:"event_version"`
	CreatedAt     time.Time              `json:"created_at"`
}

// =============================================================================
// Type-safe event data accessors
// These helpers provide compile-time safety when extracting data from events.
// =============================================================================

// GetString safely extracts a string field from EventData.
// Returns the value and true if found and is a string, otherwise empty string and false.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles both int64 and float64 (JSON unmarshaling produces float64).
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetInt64Or extracts an int64 field or returns the default value.
func (e *Event) GetInt64Or(key string, defaultVal int64) int64 {
	if v, ok := e.GetInt64(key); ok {
		return v
	}
	return defaultVal
}

// GetBool safely extracts a bool field from EventData.
func (e *Event) GetBool(key string) (bool, bool) {
	if e.EventData == nil {
		return false, false
	}
	v, ok := e.EventData[key].(bool)
	return v, ok
}

// GetBoolOr extracts a bool field or returns the default value.
func (e *Event) GetBoolOr(key string, defaultVal bool) bool {
	if v, ok := e.GetBool(key); ok {
		return v
	}
	return defaultVal
}

// =============================================================================
// Typed event data structures for common events
// =============================================================================

// ScanRunEventData contains data shared by ScanStarted/ScanCompleted/ScanFailed.
type ScanRunEventData struct {
	RunID   string `json:"run_id"`
	Trigger string `json:"trigger"` // "api", "cron", "cli"
	DryRun  bool   `json:"dry_run"`
	Reason  string `json:"reason,omitempty"`
}

// ParseScanRunEventData extracts typed run data from an event.
func (e *Event) ParseScanRunEventData() (ScanRunEventData, bool) {
	runID, ok := e.GetString("run_id")
	if !ok {
		return ScanRunEventData{}, false
	}
	return ScanRunEventData{
		RunID:   runID,
		Trigger: e.GetStringOr("trigger", ""),
		DryRun:  e.GetBoolOr("dry_run", false),
		Reason:  e.GetStringOr("reason", ""),
	}, true
}

// PhaseEventData contains data for ScanPhaseCompleted and ScanProgress events.
type PhaseEventData struct {
	RunID   string `json:"run_id"`
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Active  int64  `json:"active"`
	Pending int64  `json:"pending"`
	OK      int64  `json:"ok"`
	Fail    int64  `json:"fail"`
	Idle    int64  `json:"idle"`
	Total   int64  `json:"total"`
}

// ParsePhaseEventData extracts typed phase data from an event.
func (e *Event) ParsePhaseEventData() (PhaseEventData, bool) {
	runID, ok := e.GetString("run_id")
	if !ok {
		return PhaseEventData{}, false
	}
	return PhaseEventData{
		RunID:   runID,
		Phase:   e.GetStringOr("phase", ""),
		Message: e.GetStringOr("message", ""),
		Active:  e.GetInt64Or("active", 0),
		Pending: e.GetInt64Or("pending", 0),
		OK:      e.GetInt64Or("ok", 0),
		Fail:    e.GetInt64Or("fail", 0),
		Idle:    e.GetInt64Or("idle", 0),
		Total:   e.GetInt64Or("total", 0),
	}, true
}
