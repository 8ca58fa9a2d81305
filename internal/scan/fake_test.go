package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/jedp/fptv/internal/tvh"
)

// fakeBackend is an in-memory stand-in for a TVHeadend instance. State
// mutates the way the real backend would so multi-phase tests can
// assert end state instead of call sequences.
type fakeBackend struct {
	network  *tvh.Network
	muxes    []tvh.Mux
	services []tvh.Service
	channels []tvh.Channel
	svcMux   map[string]string
	streams  map[string]bool
	hardware map[string][]tvh.DeviceNode
	idnodes  map[string]*tvh.IDNodeEntry
	schema   *tvh.MuxClass

	// settleAfterReads makes pending/active muxes finish after that many
	// ListMuxes calls observe them. Negative means never settle.
	settleAfterReads int
	scanOutcome      map[string]tvh.ScanResult

	epgDisabled  bool
	forceScans   []string
	deletedMuxes []string
	probed       []string
	saves        []tvh.Node
	savedParams  map[string][]map[string]interface{}

	errs   map[string]error
	nextID int
}

func newFakeBackend() *fakeBackend {
	f := &fakeBackend{
		network:          &tvh.Network{UUID: "net-1", NetworkName: "ATSC OTA"},
		svcMux:           make(map[string]string),
		streams:          make(map[string]bool),
		hardware:         make(map[string][]tvh.DeviceNode),
		idnodes:          make(map[string]*tvh.IDNodeEntry),
		settleAfterReads: -1,
		scanOutcome:      make(map[string]tvh.ScanResult),
		savedParams:      make(map[string][]map[string]interface{}),
		errs:             make(map[string]error),
	}
	f.schema = &tvh.MuxClass{Props: []tvh.MuxClassProp{
		{ID: "enabled", Default: []byte("true")},
		{ID: "frequency", Default: []byte("0")},
		{ID: "modulation", Default: []byte(`"VSB/8"`)},
		{ID: "scan_state", Default: []byte("0")},
	}}
	return f
}

func (f *fakeBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeBackend) addMux(uuid string, freq int64, enabled bool, result tvh.ScanResult) {
	f.muxes = append(f.muxes, tvh.Mux{
		UUID: uuid, NetworkUUID: f.network.UUID, Frequency: freq,
		Enabled: tvh.FlexBool(enabled), ScanResult: result,
	})
}

func (f *fakeBackend) addService(uuid, name, muxUUID string) {
	f.services = append(f.services, tvh.Service{UUID: uuid, SvcName: name, MultiplexUUID: muxUUID})
	f.svcMux[uuid] = muxUUID
}

func (f *fakeBackend) addChannel(uuid, name, number string, services []string) {
	f.channels = append(f.channels, tvh.Channel{
		UUID: uuid, Name: name, Enabled: true, Number: tvh.FlexNumber(number),
		Services: services, AutoName: true, EPGAuto: true,
	})
}

func (f *fakeBackend) channelByName(name string) *tvh.Channel {
	for i := range f.channels {
		if f.channels[i].Name == name {
			return &f.channels[i]
		}
	}
	return nil
}

func (f *fakeBackend) channelByUUID(uuid string) *tvh.Channel {
	for i := range f.channels {
		if f.channels[i].UUID == uuid {
			return &f.channels[i]
		}
	}
	return nil
}

func (f *fakeBackend) FindNetwork(ctx context.Context, name string) (*tvh.Network, error) {
	if err := f.errs["FindNetwork"]; err != nil {
		return nil, err
	}
	if f.network != nil && f.network.DisplayName() == name {
		n := *f.network
		return &n, nil
	}
	return nil, nil
}

func (f *fakeBackend) ListMuxes(ctx context.Context) ([]tvh.Mux, error) {
	if err := f.errs["ListMuxes"]; err != nil {
		return nil, err
	}
	scanning := false
	for i := range f.muxes {
		if f.muxes[i].ScanState != tvh.ScanStateIdle {
			scanning = true
		}
	}
	if scanning && f.settleAfterReads >= 0 {
		if f.settleAfterReads == 0 {
			for i := range f.muxes {
				if f.muxes[i].ScanState == tvh.ScanStateIdle {
					continue
				}
				f.muxes[i].ScanState = tvh.ScanStateIdle
				if result, ok := f.scanOutcome[f.muxes[i].UUID]; ok {
					f.muxes[i].ScanResult = result
				} else {
					f.muxes[i].ScanResult = tvh.ScanResultOK
				}
			}
		} else {
			f.settleAfterReads--
		}
	}
	out := make([]tvh.Mux, len(f.muxes))
	copy(out, f.muxes)
	return out, nil
}

func (f *fakeBackend) DeleteMux(ctx context.Context, muxUUID string) error {
	if err := f.errs["DeleteMux"]; err != nil {
		return err
	}
	for i := range f.muxes {
		if f.muxes[i].UUID == muxUUID {
			f.muxes = append(f.muxes[:i], f.muxes[i+1:]...)
			f.deletedMuxes = append(f.deletedMuxes, muxUUID)
			return nil
		}
	}
	return fmt.Errorf("no such mux %s", muxUUID)
}

func (f *fakeBackend) GetMuxClass(ctx context.Context, netUUID string) (*tvh.MuxClass, error) {
	if err := f.errs["GetMuxClass"]; err != nil {
		return nil, err
	}
	return f.schema, nil
}

// CreateMux mirrors the backend's behavior of refusing a duplicate
// tuning point: a second create at the same frequency is a no-op.
func (f *fakeBackend) CreateMux(ctx context.Context, netUUID string, conf map[string]interface{}) error {
	if err := f.errs["CreateMux"]; err != nil {
		return err
	}
	freq, _ := conf["frequency"].(int64)
	for i := range f.muxes {
		if f.muxes[i].NetworkUUID == netUUID && f.muxes[i].Frequency == freq {
			return nil
		}
	}
	f.muxes = append(f.muxes, tvh.Mux{
		UUID: f.id("mux"), NetworkUUID: netUUID, Frequency: freq, Enabled: true,
	})
	return nil
}

func (f *fakeBackend) ForceScanMux(ctx context.Context, muxUUID string) error {
	if err := f.errs["ForceScanMux"]; err != nil {
		return err
	}
	f.forceScans = append(f.forceScans, muxUUID)
	for i := range f.muxes {
		if f.muxes[i].UUID == muxUUID {
			f.muxes[i].ScanState = tvh.ScanStatePending
			return nil
		}
	}
	return fmt.Errorf("no such mux %s", muxUUID)
}

func (f *fakeBackend) ListServices(ctx context.Context) ([]tvh.Service, error) {
	if err := f.errs["ListServices"]; err != nil {
		return nil, err
	}
	out := make([]tvh.Service, len(f.services))
	copy(out, f.services)
	return out, nil
}

func (f *fakeBackend) ServiceMuxMap(ctx context.Context) (map[string]string, error) {
	if err := f.errs["ServiceMuxMap"]; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(f.svcMux))
	for k, v := range f.svcMux {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBackend) ListChannels(ctx context.Context) ([]tvh.Channel, error) {
	if err := f.errs["ListChannels"]; err != nil {
		return nil, err
	}
	out := make([]tvh.Channel, len(f.channels))
	copy(out, f.channels)
	return out, nil
}

func (f *fakeBackend) CreateChannel(ctx context.Context, name, serviceUUID string) (string, error) {
	if err := f.errs["CreateChannel"]; err != nil {
		return "", err
	}
	uuid := f.id("chan")
	f.channels = append(f.channels, tvh.Channel{
		UUID: uuid, Name: name, Enabled: true,
		Services: []string{serviceUUID}, AutoName: true, EPGAuto: true,
	})
	return uuid, nil
}

func (f *fakeBackend) LoadIDNode(ctx context.Context, uuid string) (*tvh.IDNodeEntry, error) {
	if err := f.errs["LoadIDNode"]; err != nil {
		return nil, err
	}
	if entry, ok := f.idnodes[uuid]; ok {
		e := *entry
		return &e, nil
	}
	return nil, fmt.Errorf("no such idnode %s", uuid)
}

func (f *fakeBackend) SaveIDNode(ctx context.Context, node tvh.Node) error {
	if err := f.errs["SaveIDNode"]; err != nil {
		return err
	}
	f.saves = append(f.saves, node)
	uuid, _ := node["uuid"].(string)
	if enabled, ok := node["enabled"].(bool); ok {
		for i := range f.muxes {
			if f.muxes[i].UUID == uuid {
				f.muxes[i].Enabled = tvh.FlexBool(enabled)
			}
		}
	}
	return nil
}

func (f *fakeBackend) SaveIDNodeParams(ctx context.Context, uuid, classHint string, changes map[string]interface{}) error {
	if err := f.errs["SaveIDNodeParams"]; err != nil {
		return err
	}
	f.savedParams[uuid] = append(f.savedParams[uuid], changes)
	if services, ok := changes["services"].([]string); ok {
		if ch := f.channelByUUID(uuid); ch != nil {
			ch.Services = services
		}
	}
	return nil
}

func (f *fakeBackend) DeleteIDNode(ctx context.Context, uuid string) error {
	if err := f.errs["DeleteIDNode"]; err != nil {
		return err
	}
	for i := range f.channels {
		if f.channels[i].UUID == uuid {
			f.channels = append(f.channels[:i], f.channels[i+1:]...)
			return nil
		}
	}
	for i := range f.muxes {
		if f.muxes[i].UUID == uuid {
			f.muxes = append(f.muxes[:i], f.muxes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no such idnode %s", uuid)
}

func (f *fakeBackend) HardwareTree(ctx context.Context, nodeID string) ([]tvh.DeviceNode, error) {
	if err := f.errs["HardwareTree"]; err != nil {
		return nil, err
	}
	return f.hardware[nodeID], nil
}

func (f *fakeBackend) DisableEPGAutoGrab(ctx context.Context) error {
	if err := f.errs["DisableEPGAutoGrab"]; err != nil {
		return err
	}
	f.epgDisabled = true
	return nil
}

func (f *fakeBackend) ProbeStream(ctx context.Context, channelUUID string, timeout time.Duration) bool {
	f.probed = append(f.probed, channelUUID)
	return f.streams[channelUUID]
}

var _ API = (*fakeBackend)(nil)
