package scan

import (
	"context"
	"testing"

	"github.com/jedp/fptv/internal/tvh"
)

func TestCreateRangeCreatesValidMuxes(t *testing.T) {
	f := newFakeBackend()

	p := NewProvisioner(f, "VSB/8", false)
	stats := p.CreateRange(context.Background(), "net-1", 2, 7)

	if stats.OK != 6 || stats.Failed != 0 {
		t.Fatalf("stats = %s, want 6 created", stats)
	}
	if len(f.muxes) != 6 {
		t.Fatalf("len(muxes) = %d, want 6", len(f.muxes))
	}
	// RF 2 is 57 MHz, RF 7 is the first high-VHF slot.
	if f.muxes[0].Frequency != 57_000_000 {
		t.Errorf("RF 2 frequency = %d, want 57000000", f.muxes[0].Frequency)
	}
	if f.muxes[5].Frequency != 177_000_000 {
		t.Errorf("RF 7 frequency = %d, want 177000000", f.muxes[5].Frequency)
	}
}

func TestCreateRangeSkipsInvalidRF(t *testing.T) {
	f := newFakeBackend()

	p := NewProvisioner(f, "VSB/8", false)
	stats := p.CreateRange(context.Background(), "net-1", 0, 3)

	if stats.Skipped != 2 || stats.OK != 2 {
		t.Errorf("stats = %s, want RF 0 and 1 skipped, RF 2 and 3 created", stats)
	}
}

func TestCreateRangeIdempotent(t *testing.T) {
	f := newFakeBackend()

	p := NewProvisioner(f, "VSB/8", false)
	p.CreateRange(context.Background(), "net-1", 2, 4)
	p.CreateRange(context.Background(), "net-1", 2, 4)

	if len(f.muxes) != 3 {
		t.Errorf("len(muxes) = %d after two passes, want 3", len(f.muxes))
	}
}

func TestWipeDeletesOnlyNetworkMuxes(t *testing.T) {
	f := newFakeBackend()
	f.addMux("m1", 473_000_000, true, tvh.ScanResultOK)
	f.muxes = append(f.muxes, tvh.Mux{UUID: "m-foreign", NetworkUUID: "other", Frequency: 479_000_000})

	p := NewProvisioner(f, "VSB/8", false)
	stats := p.Wipe(context.Background(), "net-1", "ATSC OTA")

	if stats.OK != 1 {
		t.Errorf("stats = %s, want 1 wiped", stats)
	}
	if len(f.muxes) != 1 || f.muxes[0].UUID != "m-foreign" {
		t.Errorf("muxes = %+v, want only the foreign mux left", f.muxes)
	}
}

func TestScanAllQueuesEveryNetworkMux(t *testing.T) {
	f := newFakeBackend()
	f.addMux("m1", 473_000_000, true, tvh.ScanResultNone)
	f.addMux("m2", 479_000_000, true, tvh.ScanResultNone)

	p := NewProvisioner(f, "VSB/8", false)
	stats := p.ScanAll(context.Background(), "net-1", "ATSC OTA")

	if stats.OK != 2 || len(f.forceScans) != 2 {
		t.Errorf("stats = %s, forceScans = %v", stats, f.forceScans)
	}
}

func TestDisableFailedMuxes(t *testing.T) {
	f := newFakeBackend()
	f.addMux("m-ok", 473_000_000, true, tvh.ScanResultOK)
	f.addMux("m-fail", 479_000_000, true, tvh.ScanResultFail)
	f.addMux("m-off", 485_000_000, false, tvh.ScanResultFail)

	p := NewProvisioner(f, "VSB/8", false)
	stats := p.DisableFailedMuxes(context.Background(), "net-1", "ATSC OTA")

	if stats.OK != 1 {
		t.Fatalf("stats = %s, want only the enabled failed mux disabled", stats)
	}
	for _, m := range f.muxes {
		if m.UUID == "m-fail" && m.Enabled.Bool() {
			t.Error("m-fail should be disabled")
		}
		if m.UUID == "m-ok" && !m.Enabled.Bool() {
			t.Error("m-ok must stay enabled")
		}
	}
}

func TestProvisionerDryRunWritesNothing(t *testing.T) {
	f := newFakeBackend()
	f.addMux("m-fail", 479_000_000, true, tvh.ScanResultFail)

	p := NewProvisioner(f, "VSB/8", true)
	p.CreateRange(context.Background(), "net-1", 2, 4)
	p.ScanAll(context.Background(), "net-1", "ATSC OTA")
	p.Wipe(context.Background(), "net-1", "ATSC OTA")
	p.DisableFailedMuxes(context.Background(), "net-1", "ATSC OTA")

	if len(f.muxes) != 1 || len(f.forceScans) != 0 || len(f.saves) != 0 || len(f.deletedMuxes) != 0 {
		t.Error("dry-run must issue no backend writes")
	}
}
