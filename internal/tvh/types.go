package tvh

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Scan progress of a mux. Backend versions report either the numeric
// enum or its label, so the type decodes both.
type ScanState int

const (
	ScanStateIdle    ScanState = 0
	ScanStatePending ScanState = 1
	ScanStateActive  ScanState = 2
)

func (s *ScanState) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = ScanState(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "ACTIVE":
		*s = ScanStateActive
	case "PEND", "PENDING":
		*s = ScanStatePending
	default:
		if n, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			*s = ScanState(n)
		} else {
			*s = ScanStateIdle
		}
	}
	return nil
}

// Scan outcome of a mux, numeric or label encoded.
type ScanResult int

const (
	ScanResultNone ScanResult = 0
	ScanResultOK   ScanResult = 1
	ScanResultFail ScanResult = 2
)

func (r *ScanResult) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*r = ScanResult(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(str)) {
	case "OK":
		*r = ScanResultOK
	case "FAIL", "FAILED":
		*r = ScanResultFail
	default:
		if n, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			*r = ScanResult(n)
		} else {
			*r = ScanResultNone
		}
	}
	return nil
}

// FlexBool decodes true/false, 0/1 and "0"/"1" uniformly.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", "1", `"1"`, `"true"`:
		*b = true
	default:
		*b = false
	}
	return nil
}

// Bool returns the plain bool value.
func (b FlexBool) Bool() bool { return bool(b) }

// gridResponse is the common list envelope.
type gridResponse[T any] struct {
	Entries []T `json:"entries"`
	Total   int `json:"total"`
}

// Network is one logical group of tuning points.
type Network struct {
	UUID        string `json:"uuid"`
	NetworkName string `json:"networkname"`
	Name        string `json:"name"`
}

// DisplayName returns networkname when set, falling back to name.
func (n Network) DisplayName() string {
	if n.NetworkName != "" {
		return n.NetworkName
	}
	return n.Name
}

// Mux is one RF tuning point as reported by the mux grid. The network
// reference arrives as a uuid in some builds and as a display name in
// others, so both fields are kept.
type Mux struct {
	UUID        string     `json:"uuid"`
	NetworkUUID string     `json:"network_uuid"`
	Network     string     `json:"network"`
	Frequency   int64      `json:"frequency"`
	Enabled     FlexBool   `json:"enabled"`
	ScanState   ScanState  `json:"scan_state"`
	ScanResult  ScanResult `json:"scan_result"`
}

// BelongsTo reports whether the mux references the network by uuid or
// by display name.
func (m Mux) BelongsTo(netUUID, netName string) bool {
	if m.NetworkUUID != "" && m.NetworkUUID == netUUID {
		return true
	}
	return m.Network != "" && (m.Network == netUUID || m.Network == netName)
}

// Param is one id/value pair from an idnode parameter list.
type Param struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// StringValue decodes the param value as a string, or "" if it is not one.
func (p Param) StringValue() string {
	var s string
	if err := json.Unmarshal(p.Value, &s); err != nil {
		return ""
	}
	return s
}

// BoolValue decodes the param value as a flexible bool.
func (p Param) BoolValue() bool {
	var b FlexBool
	if err := json.Unmarshal(p.Value, &b); err != nil {
		return false
	}
	return bool(b)
}

// Service is one broadcast stream discovered on a mux.
type Service struct {
	UUID          string  `json:"uuid"`
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Text          string  `json:"text"`
	SvcName       string  `json:"svcname"`
	MultiplexUUID string  `json:"multiplex_uuid"`
	Params        []Param `json:"params"`
}

// Identifier returns uuid when present, falling back to id.
func (s Service) Identifier() string {
	if s.UUID != "" {
		return s.UUID
	}
	return s.ID
}

// ParamValue returns the string value of the named param, or "".
func (s Service) ParamValue(id string) string {
	for _, p := range s.Params {
		if p.ID == id {
			return p.StringValue()
		}
	}
	return ""
}

// Channel is one user-facing playable entry.
type Channel struct {
	UUID     string      `json:"uuid"`
	Name     string      `json:"name"`
	Enabled  FlexBool    `json:"enabled"`
	Number   FlexNumber  `json:"number"`
	Services []string    `json:"services"`
	AutoName FlexBool    `json:"autoname"`
	EPGAuto  FlexBool    `json:"epgauto"`
}

// FlexNumber holds a channel number that arrives as "9.4", "9", 9 or 9.4.
type FlexNumber string

func (f *FlexNumber) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexNumber(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		*f = ""
		return nil
	}
	*f = FlexNumber(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

func (f FlexNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// MajorMinor parses the number into its (major, minor) parts.
// "9" parses as (9, 0). Returns ok=false for blank or malformed input.
func (f FlexNumber) MajorMinor() (major, minor int, ok bool) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return 0, 0, false
	}
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		major, errA := strconv.Atoi(s[:dot])
		minor, errB := strconv.Atoi(s[dot+1:])
		if errA != nil || errB != nil {
			return 0, 0, false
		}
		return major, minor, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, false
	}
	return n, 0, true
}

// MuxClass is the backend's declared mux-parameter schema for a network.
type MuxClass struct {
	Props []MuxClassProp `json:"props"`
}

// MuxClassProp is one schema-declared mux field.
type MuxClassProp struct {
	ID      string          `json:"id"`
	RdOnly  FlexBool        `json:"rdonly"`
	NoSave  FlexBool        `json:"nosave"`
	Default json.RawMessage `json:"default"`
}

// DeviceNode is one entry in the hardware device tree.
type DeviceNode struct {
	UUID  string `json:"uuid"`
	Text  string `json:"text"`
	Class string `json:"class"`
	Leaf  bool   `json:"leaf"`
}

// IDNodeEntry is one loaded idnode with its full parameter set.
type IDNodeEntry struct {
	UUID   string  `json:"uuid"`
	ID     string  `json:"id"`
	Class  string  `json:"class"`
	Text   string  `json:"text"`
	Params []Param `json:"params"`
}

// ParamValue returns the raw value of the named param, or nil.
func (e IDNodeEntry) ParamValue(id string) json.RawMessage {
	for _, p := range e.Params {
		if p.ID == id {
			return p.Value
		}
	}
	return nil
}
