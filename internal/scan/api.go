package scan

import (
	"context"
	"time"

	"github.com/jedp/fptv/internal/tvh"
)

// API is the slice of the TVHeadend client the pipeline depends on.
// Tests substitute an in-memory backend.
type API interface {
	FindNetwork(ctx context.Context, name string) (*tvh.Network, error)
	ListMuxes(ctx context.Context) ([]tvh.Mux, error)
	DeleteMux(ctx context.Context, muxUUID string) error
	GetMuxClass(ctx context.Context, netUUID string) (*tvh.MuxClass, error)
	CreateMux(ctx context.Context, netUUID string, conf map[string]interface{}) error
	ForceScanMux(ctx context.Context, muxUUID string) error
	ListServices(ctx context.Context) ([]tvh.Service, error)
	ServiceMuxMap(ctx context.Context) (map[string]string, error)
	ListChannels(ctx context.Context) ([]tvh.Channel, error)
	CreateChannel(ctx context.Context, name, serviceUUID string) (string, error)
	LoadIDNode(ctx context.Context, uuid string) (*tvh.IDNodeEntry, error)
	SaveIDNode(ctx context.Context, node tvh.Node) error
	SaveIDNodeParams(ctx context.Context, uuid, classHint string, changes map[string]interface{}) error
	DeleteIDNode(ctx context.Context, uuid string) error
	HardwareTree(ctx context.Context, nodeID string) ([]tvh.DeviceNode, error)
	DisableEPGAutoGrab(ctx context.Context) error
	ProbeStream(ctx context.Context, channelUUID string, timeout time.Duration) bool
}

var _ API = (*tvh.Client)(nil)
