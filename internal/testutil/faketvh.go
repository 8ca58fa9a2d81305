package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jedp/fptv/internal/playlist"
	"github.com/jedp/fptv/internal/scan"
	"github.com/jedp/fptv/internal/tvh"
)

// FakeTVH is a trimmed in-memory TVHeadend backend. Muxes settle after
// a configurable number of ListMuxes calls so orchestrated runs
// converge without real time passing.
type FakeTVH struct {
	Mu       sync.Mutex
	Network  *tvh.Network
	Muxes    []tvh.Mux
	Services []tvh.Service
	Channels []tvh.Channel
	Schema   *tvh.MuxClass

	// SettleAfterReads counts down on each ListMuxes call that sees a
	// scanning mux; at zero all scans finish with result OK.
	SettleAfterReads int
	Errs             map[string]error
	PlaylistEntries  []playlist.Channel

	// Gate, when set, blocks FindNetwork until closed. Lets tests hold
	// a run in flight.
	Gate chan struct{}

	nextID int
}

var _ scan.API = (*FakeTVH)(nil)

func NewFakeTVH() *FakeTVH {
	return &FakeTVH{
		Network: &tvh.Network{UUID: "net-1", NetworkName: "ATSC OTA"},
		Schema: &tvh.MuxClass{Props: []tvh.MuxClassProp{
			{ID: "enabled", Default: []byte("true")},
			{ID: "frequency", Default: []byte("0")},
			{ID: "modulation", Default: []byte(`"VSB/8"`)},
			{ID: "scan_state", Default: []byte("0")},
		}},
		SettleAfterReads: 1,
		Errs:             make(map[string]error),
	}
}

func (f *FakeTVH) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// AddMux registers an existing mux on the fake network.
func (f *FakeTVH) AddMux(uuid string, freq int64) {
	f.Muxes = append(f.Muxes, tvh.Mux{
		UUID: uuid, NetworkUUID: f.Network.UUID, Frequency: freq, Enabled: true,
	})
}

// AddService registers a named service already discovered on a mux.
func (f *FakeTVH) AddService(uuid, name, muxUUID string) {
	f.Services = append(f.Services, tvh.Service{UUID: uuid, SvcName: name, MultiplexUUID: muxUUID})
}

func (f *FakeTVH) FindNetwork(ctx context.Context, name string) (*tvh.Network, error) {
	f.Mu.Lock()
	gate := f.Gate
	f.Mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.Mu.Lock()
	defer f.Mu.Unlock()
	if err := f.Errs["FindNetwork"]; err != nil {
		return nil, err
	}
	if f.Network != nil && f.Network.DisplayName() == name {
		n := *f.Network
		return &n, nil
	}
	return nil, nil
}

func (f *FakeTVH) ListMuxes(ctx context.Context) ([]tvh.Mux, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if err := f.Errs["ListMuxes"]; err != nil {
		return nil, err
	}
	scanning := false
	for i := range f.Muxes {
		if f.Muxes[i].ScanState != tvh.ScanStateIdle {
			scanning = true
		}
	}
	if scanning {
		if f.SettleAfterReads == 0 {
			for i := range f.Muxes {
				if f.Muxes[i].ScanState != tvh.ScanStateIdle {
					f.Muxes[i].ScanState = tvh.ScanStateIdle
					f.Muxes[i].ScanResult = tvh.ScanResultOK
				}
			}
		} else {
			f.SettleAfterReads--
		}
	}
	out := make([]tvh.Mux, len(f.Muxes))
	copy(out, f.Muxes)
	return out, nil
}

func (f *FakeTVH) DeleteMux(ctx context.Context, muxUUID string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	for i := range f.Muxes {
		if f.Muxes[i].UUID == muxUUID {
			f.Muxes = append(f.Muxes[:i], f.Muxes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no such mux %s", muxUUID)
}

func (f *FakeTVH) GetMuxClass(ctx context.Context, netUUID string) (*tvh.MuxClass, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if err := f.Errs["GetMuxClass"]; err != nil {
		return nil, err
	}
	return f.Schema, nil
}

func (f *FakeTVH) CreateMux(ctx context.Context, netUUID string, conf map[string]interface{}) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if err := f.Errs["CreateMux"]; err != nil {
		return err
	}
	freq, _ := conf["frequency"].(int64)
	for i := range f.Muxes {
		if f.Muxes[i].NetworkUUID == netUUID && f.Muxes[i].Frequency == freq {
			return nil
		}
	}
	f.Muxes = append(f.Muxes, tvh.Mux{
		UUID: f.id("mux"), NetworkUUID: netUUID, Frequency: freq, Enabled: true,
	})
	return nil
}

func (f *FakeTVH) ForceScanMux(ctx context.Context, muxUUID string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	for i := range f.Muxes {
		if f.Muxes[i].UUID == muxUUID {
			f.Muxes[i].ScanState = tvh.ScanStatePending
			return nil
		}
	}
	return fmt.Errorf("no such mux %s", muxUUID)
}

func (f *FakeTVH) ListServices(ctx context.Context) ([]tvh.Service, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if err := f.Errs["ListServices"]; err != nil {
		return nil, err
	}
	out := make([]tvh.Service, len(f.Services))
	copy(out, f.Services)
	return out, nil
}

func (f *FakeTVH) ServiceMuxMap(ctx context.Context) (map[string]string, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	out := make(map[string]string, len(f.Services))
	for _, svc := range f.Services {
		out[svc.UUID] = svc.MultiplexUUID
	}
	return out, nil
}

func (f *FakeTVH) ListChannels(ctx context.Context) ([]tvh.Channel, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if err := f.Errs["ListChannels"]; err != nil {
		return nil, err
	}
	out := make([]tvh.Channel, len(f.Channels))
	copy(out, f.Channels)
	return out, nil
}

func (f *FakeTVH) CreateChannel(ctx context.Context, name, serviceUUID string) (string, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if err := f.Errs["CreateChannel"]; err != nil {
		return "", err
	}
	uuid := f.id("chan")
	f.Channels = append(f.Channels, tvh.Channel{
		UUID: uuid, Name: name, Enabled: true,
		Services: []string{serviceUUID}, AutoName: true, EPGAuto: true,
	})
	return uuid, nil
}

func (f *FakeTVH) LoadIDNode(ctx context.Context, uuid string) (*tvh.IDNodeEntry, error) {
	return nil, fmt.Errorf("no such idnode %s", uuid)
}

func (f *FakeTVH) SaveIDNode(ctx context.Context, node tvh.Node) error {
	return nil
}

func (f *FakeTVH) SaveIDNodeParams(ctx context.Context, uuid, classHint string, changes map[string]interface{}) error {
	return nil
}

func (f *FakeTVH) DeleteIDNode(ctx context.Context, uuid string) error {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	for i := range f.Channels {
		if f.Channels[i].UUID == uuid {
			f.Channels = append(f.Channels[:i], f.Channels[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no such idnode %s", uuid)
}

func (f *FakeTVH) HardwareTree(ctx context.Context, nodeID string) ([]tvh.DeviceNode, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if err := f.Errs["HardwareTree"]; err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *FakeTVH) DisableEPGAutoGrab(ctx context.Context) error {
	return nil
}

func (f *FakeTVH) ProbeStream(ctx context.Context, channelUUID string, timeout time.Duration) bool {
	return false
}

// Playlist satisfies the api.Playlister interface.
func (f *FakeTVH) Playlist(ctx context.Context) ([]playlist.Channel, error) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if err := f.Errs["Playlist"]; err != nil {
		return nil, err
	}
	out := make([]playlist.Channel, len(f.PlaylistEntries))
	copy(out, f.PlaylistEntries)
	return out, nil
}
