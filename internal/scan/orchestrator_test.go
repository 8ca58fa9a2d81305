package scan

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jedp/fptv/internal/clock"
	"github.com/jedp/fptv/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		NetworkName:           "ATSC OTA",
		RFStart:               2,
		RFEnd:                 4,
		MapServicesToChannels: true,
		CleanupChannels:       true,
		DedupeChannels:        true,
		PlaceholderNames:      []string{"{name-not-set}"},
		Modulation:            "VSB/8",
		PollInterval:          2 * time.Second,
		ScanTimeout:           time.Minute,
		SettleDelay:           3 * time.Second,
		ProbeTimeout:          1500 * time.Millisecond,
	}
}

// fullRunBackend stages a backend that needs every phase to do work:
// a misconfigured frontend, stale channels of each junk variety, one
// unmapped service and one duplicated channel name.
func fullRunBackend() *fakeBackend {
	f := newFakeBackend()
	tunerTree(f)
	f.idnodes["fe-1"] = frontendEntry("fe-1", false, `[]`)

	// CreateRange allocates uuids mux-1..mux-3 for RF 2..4.
	f.addService("s1", "KQED-HD", "mux-1")
	f.addService("s2", "KPIX", "mux-2")
	f.addService("s2b", "KPIX", "mux-2")

	f.addChannel("c-orphan", "Empty", "2.1", nil)
	f.addChannel("c-ph", "{name-not-set}", "", []string{"s-dead"})
	f.addChannel("c-stale", "KOLD", "13.1", []string{"s-dead2"})
	f.addChannel("c-dup1", "KPIX", "5.1", []string{"s2"})
	f.addChannel("c-dup2", "KPIX", "5.2", []string{"s2b"})

	f.settleAfterReads = 1
	return f
}

func channelNames(f *fakeBackend) []string {
	var names []string
	for _, ch := range f.channels {
		names = append(names, ch.Name)
	}
	sort.Strings(names)
	return names
}

func TestOrchestratorFullRun(t *testing.T) {
	f := fullRunBackend()
	clk := clock.NewMockClock(time.Unix(0, 0))

	o := NewOrchestrator(f, clk, testConfig())
	result := o.Run(context.Background(), nil)

	if !result.Success {
		t.Fatalf("run failed: %s", result.Reason)
	}
	if !f.epgDisabled {
		t.Error("EPG auto-grab should be disabled")
	}
	if result.Frontends.Updated != 1 {
		t.Errorf("frontend stats = %+v, want 1 updated", result.Frontends)
	}
	if len(f.muxes) != 3 {
		t.Fatalf("len(muxes) = %d, want 3 for RF 2..4", len(f.muxes))
	}
	if len(f.forceScans) != 3 {
		t.Errorf("forceScans = %v, want every mux queued", f.forceScans)
	}
	if !result.FinalStates.Settled() || result.FinalStates.OK != 3 {
		t.Errorf("final states = %+v, want 3 settled OK", result.FinalStates)
	}

	// Orphan, placeholder and dead-link channels are gone; the unmapped
	// service got a channel; the duplicate pair collapsed to one.
	want := []string{"KPIX", "KQED-HD"}
	if got := channelNames(f); !reflect.DeepEqual(got, want) {
		t.Fatalf("channels = %v, want %v", got, want)
	}
	kpix := f.channelByName("KPIX")
	if !reflect.DeepEqual(kpix.Services, []string{"s2", "s2b"}) {
		t.Errorf("KPIX services = %v, want merged [s2 s2b]", kpix.Services)
	}
	if result.Pruned.ChannelsDeleted != 1 || result.Pruned.RemovalReasons[ReasonServiceInvalid] != 1 {
		t.Errorf("prune result = %+v, want the dead-link channel removed", result.Pruned)
	}
}

func TestOrchestratorSecondRunIsNoOp(t *testing.T) {
	f := fullRunBackend()
	clk := clock.NewMockClock(time.Unix(0, 0))
	cfg := testConfig()

	NewOrchestrator(f, clk, cfg).Run(context.Background(), nil)
	firstChannels := channelNames(f)

	f.settleAfterReads = 1
	result := NewOrchestrator(f, clk, cfg).Run(context.Background(), nil)

	if !result.Success {
		t.Fatalf("second run failed: %s", result.Reason)
	}
	if got := channelNames(f); !reflect.DeepEqual(got, firstChannels) {
		t.Errorf("second run changed channels: %v -> %v", firstChannels, got)
	}
	if result.Reconciled.Created != 0 {
		t.Errorf("second run created %d channels, want 0", result.Reconciled.Created)
	}
	if result.Deduped.MergedGroups != 0 || result.Pruned.LinksRemoved != 0 {
		t.Errorf("second run did cleanup work: dedup=%+v prune=%+v", result.Deduped, result.Pruned)
	}
	if len(f.muxes) != 3 {
		t.Errorf("second run changed mux count to %d", len(f.muxes))
	}
}

func TestOrchestratorAbortsWhenNetworkMissing(t *testing.T) {
	f := fullRunBackend()
	f.network.NetworkName = "Some Other Network"
	clk := clock.NewMockClock(time.Unix(0, 0))

	result := NewOrchestrator(f, clk, testConfig()).Run(context.Background(), nil)

	if result.Success {
		t.Fatal("run should fail when the network does not exist")
	}
	if !strings.Contains(result.Reason, "network not found") {
		t.Errorf("Reason = %q", result.Reason)
	}
	if len(f.forceScans) != 0 || len(f.muxes) != 0 {
		t.Error("no provisioning may happen without the network")
	}
}

func TestOrchestratorTimeoutAbortsRemainingPhases(t *testing.T) {
	f := fullRunBackend()
	f.settleAfterReads = -1
	clk := clock.NewMockClock(time.Unix(0, 0))
	cfg := testConfig()
	cfg.ScanTimeout = 5 * time.Second

	before := channelNames(f)
	result := NewOrchestrator(f, clk, cfg).Run(context.Background(), nil)

	if result.Success {
		t.Fatal("run should fail on poll timeout")
	}
	if !strings.Contains(result.Reason, "did not settle") {
		t.Errorf("Reason = %q", result.Reason)
	}
	// No channel phase may run after the timeout: the stale junk stays.
	if got := channelNames(f); !reflect.DeepEqual(got, before) {
		t.Errorf("channels changed after timeout: %v -> %v", before, got)
	}
	if result.Reconciled.Created != 0 || result.Pruned.ChannelsChecked != 0 {
		t.Error("reconciliation and pruning must not run after a timeout")
	}
}

func TestOrchestratorDryRunWritesNothing(t *testing.T) {
	f := fullRunBackend()
	// Nothing forces a scan in dry-run, so no mux ever leaves idle.
	f.settleAfterReads = 0
	clk := clock.NewMockClock(time.Unix(0, 0))
	cfg := testConfig()
	cfg.DryRunMode = true

	before := channelNames(f)
	result := NewOrchestrator(f, clk, cfg).Run(context.Background(), nil)

	if !result.Success {
		t.Fatalf("dry run failed: %s", result.Reason)
	}
	if f.epgDisabled {
		t.Error("dry-run must not write EPG config")
	}
	if len(f.muxes) != 0 || len(f.forceScans) != 0 || len(f.saves) != 0 {
		t.Error("dry-run must not provision or scan")
	}
	if got := channelNames(f); !reflect.DeepEqual(got, before) {
		t.Errorf("dry-run changed channels: %v -> %v", before, got)
	}
}

func TestOrchestratorReportsProgress(t *testing.T) {
	f := fullRunBackend()
	clk := clock.NewMockClock(time.Unix(0, 0))

	var messages []string
	result := NewOrchestrator(f, clk, testConfig()).Run(context.Background(), func(msg string, _ MuxStates) {
		messages = append(messages, msg)
	})

	if !result.Success {
		t.Fatalf("run failed: %s", result.Reason)
	}
	if len(messages) == 0 {
		t.Fatal("no progress messages")
	}
	if messages[len(messages)-1] != "Scan complete" {
		t.Errorf("last message = %q, want \"Scan complete\"", messages[len(messages)-1])
	}
}
