package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSetLevel(t *testing.T) {
	original := minLevel
	defer func() { minLevel = original }()

	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", Debug},
		{"info", Info},
		{"warn", Warn},
		{"error", Error},
		{"bogus", Info},
		{"", Info},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			SetLevel(tt.input)
			if minLevel != tt.want {
				t.Errorf("SetLevel(%q): minLevel = %s, want %s", tt.input, minLevel, tt.want)
			}
		})
	}
}

func TestLevelPriority_Ordering(t *testing.T) {
	if !(levelPriority(Debug) < levelPriority(Info) &&
		levelPriority(Info) < levelPriority(Warn) &&
		levelPriority(Warn) < levelPriority(Error)) {
		t.Error("level priorities must be strictly increasing debug < info < warn < error")
	}
}

func TestSubscribe_ReceivesEntries(t *testing.T) {
	original := minLevel
	defer func() { minLevel = original }()
	minLevel = Debug

	ch := Subscribe()
	defer Unsubscribe(ch)

	Infof("subscriber message %d", 42)

	select {
	case entry := <-ch:
		if entry.Level != Info {
			t.Errorf("entry.Level = %s, want %s", entry.Level, Info)
		}
		if !strings.Contains(entry.Message, "subscriber message 42") {
			t.Errorf("entry.Message = %q, missing expected text", entry.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log entry")
	}
}

func TestLog_FiltersBelowMinLevel(t *testing.T) {
	original := minLevel
	defer func() { minLevel = original }()
	minLevel = Error

	ch := Subscribe()
	defer Unsubscribe(ch)

	Debugf("should be filtered")
	Infof("should also be filtered")

	select {
	case entry := <-ch:
		t.Errorf("unexpected entry broadcast below min level: %+v", entry)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInit_WritesToRotatedFile(t *testing.T) {
	tmpDir := t.TempDir()
	originalLevel := minLevel
	originalFileLogger := fileLogger
	defer func() {
		minLevel = originalLevel
		if fileLogger != nil {
			_ = fileLogger.Close()
		}
		fileLogger = originalFileLogger
	}()

	minLevel = Debug
	Init(tmpDir)

	Infof("provisioner log smoke test")

	if fileLogger != nil {
		_ = fileLogger.Close()
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "fptv.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "provisioner log smoke test") {
		t.Error("log file should contain the logged message")
	}
}
