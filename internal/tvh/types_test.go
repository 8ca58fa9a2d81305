package tvh

import (
	"encoding/json"
	"testing"
)

func TestScanStateDecode(t *testing.T) {
	tests := []struct {
		input string
		want  ScanState
	}{
		{`0`, ScanStateIdle},
		{`1`, ScanStatePending},
		{`2`, ScanStateActive},
		{`"ACTIVE"`, ScanStateActive},
		{`"PEND"`, ScanStatePending},
		{`"PENDING"`, ScanStatePending},
		{`"IDLE"`, ScanStateIdle},
		{`"1"`, ScanStatePending},
		{`"garbage"`, ScanStateIdle},
	}
	for _, tt := range tests {
		var s ScanState
		if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
			t.Errorf("unmarshal %s: %v", tt.input, err)
			continue
		}
		if s != tt.want {
			t.Errorf("ScanState(%s) = %d, want %d", tt.input, s, tt.want)
		}
	}
}

func TestScanResultDecode(t *testing.T) {
	tests := []struct {
		input string
		want  ScanResult
	}{
		{`0`, ScanResultNone},
		{`1`, ScanResultOK},
		{`2`, ScanResultFail},
		{`"OK"`, ScanResultOK},
		{`"FAIL"`, ScanResultFail},
		{`"NONE"`, ScanResultNone},
		{`"2"`, ScanResultFail},
	}
	for _, tt := range tests {
		var r ScanResult
		if err := json.Unmarshal([]byte(tt.input), &r); err != nil {
			t.Errorf("unmarshal %s: %v", tt.input, err)
			continue
		}
		if r != tt.want {
			t.Errorf("ScanResult(%s) = %d, want %d", tt.input, r, tt.want)
		}
	}
}

func TestFlexBoolDecode(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`true`, true},
		{`false`, false},
		{`1`, true},
		{`0`, false},
		{`"1"`, true},
		{`"0"`, false},
	}
	for _, tt := range tests {
		var b FlexBool
		if err := json.Unmarshal([]byte(tt.input), &b); err != nil {
			t.Errorf("unmarshal %s: %v", tt.input, err)
			continue
		}
		if bool(b) != tt.want {
			t.Errorf("FlexBool(%s) = %v, want %v", tt.input, b, tt.want)
		}
	}
}

func TestFlexNumber_MajorMinor(t *testing.T) {
	tests := []struct {
		input        string
		major, minor int
		ok           bool
	}{
		{"9.4", 9, 4, true},
		{"9", 9, 0, true},
		{" 12.1 ", 12, 1, true},
		{"", 0, 0, false},
		{"abc", 0, 0, false},
		{"9.x", 0, 0, false},
	}
	for _, tt := range tests {
		major, minor, ok := FlexNumber(tt.input).MajorMinor()
		if major != tt.major || minor != tt.minor || ok != tt.ok {
			t.Errorf("MajorMinor(%q) = (%d, %d, %v), want (%d, %d, %v)",
				tt.input, major, minor, ok, tt.major, tt.minor, tt.ok)
		}
	}
}

func TestFlexNumberDecode(t *testing.T) {
	var ch Channel
	if err := json.Unmarshal([]byte(`{"uuid":"c1","number":"9.4"}`), &ch); err != nil {
		t.Fatalf("string number: %v", err)
	}
	if ch.Number != "9.4" {
		t.Errorf("string number = %q, want 9.4", ch.Number)
	}

	if err := json.Unmarshal([]byte(`{"uuid":"c2","number":9}`), &ch); err != nil {
		t.Fatalf("numeric number: %v", err)
	}
	if major, _, ok := ch.Number.MajorMinor(); !ok || major != 9 {
		t.Errorf("numeric number parsed as %q", ch.Number)
	}
}

func TestMuxBelongsTo(t *testing.T) {
	tests := []struct {
		name string
		mux  Mux
		want bool
	}{
		{"by uuid", Mux{NetworkUUID: "net-1"}, true},
		{"by name in network field", Mux{Network: "ATSC OTA"}, true},
		{"by uuid in network field", Mux{Network: "net-1"}, true},
		{"wrong network", Mux{NetworkUUID: "net-2", Network: "Cable"}, false},
		{"no reference", Mux{}, false},
	}
	for _, tt := range tests {
		if got := tt.mux.BelongsTo("net-1", "ATSC OTA"); got != tt.want {
			t.Errorf("%s: BelongsTo = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNetworkDisplayName(t *testing.T) {
	if got := (Network{NetworkName: "ATSC OTA", Name: "fallback"}).DisplayName(); got != "ATSC OTA" {
		t.Errorf("DisplayName = %q, want ATSC OTA", got)
	}
	if got := (Network{Name: "fallback"}).DisplayName(); got != "fallback" {
		t.Errorf("DisplayName = %q, want fallback", got)
	}
}

func TestServiceParamValue(t *testing.T) {
	svc := Service{
		Params: []Param{
			{ID: "svcname", Value: json.RawMessage(`"KQED-HD"`)},
			{ID: "sid", Value: json.RawMessage(`3`)},
		},
	}
	if got := svc.ParamValue("svcname"); got != "KQED-HD" {
		t.Errorf("ParamValue(svcname) = %q, want KQED-HD", got)
	}
	if got := svc.ParamValue("sid"); got != "" {
		t.Errorf("ParamValue of non-string = %q, want empty", got)
	}
	if got := svc.ParamValue("missing"); got != "" {
		t.Errorf("ParamValue(missing) = %q, want empty", got)
	}
}

func TestBuildMuxConf(t *testing.T) {
	mc := &MuxClass{Props: []MuxClassProp{
		{ID: "frequency", Default: json.RawMessage(`0`)},
		{ID: "modulation", Default: json.RawMessage(`"VSB/8"`)},
		{ID: "uuid", RdOnly: true, Default: json.RawMessage(`""`)},
		{ID: "internal", NoSave: true, Default: json.RawMessage(`1`)},
		{ID: "no_default"},
	}}

	conf := BuildMuxConf(mc)
	if _, ok := conf["frequency"]; !ok {
		t.Error("frequency default should be included")
	}
	if conf["modulation"] != "VSB/8" {
		t.Errorf("modulation = %v, want VSB/8", conf["modulation"])
	}
	if _, ok := conf["uuid"]; ok {
		t.Error("read-only prop should be skipped")
	}
	if _, ok := conf["internal"]; ok {
		t.Error("nosave prop should be skipped")
	}
	if _, ok := conf["no_default"]; ok {
		t.Error("prop without default should be skipped")
	}
}
