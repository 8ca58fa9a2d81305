package tvh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/jedp/fptv/internal/logger"
)

const gridLimit = "99999"

// FindNetwork resolves a network by display name. Returns nil, nil
// when no network matches.
func (c *Client) FindNetwork(ctx context.Context, name string) (*Network, error) {
	var resp gridResponse[Network]
	params := url.Values{"limit": {gridLimit}}
	if err := c.GetJSON(ctx, "/api/mpegts/network/grid", params, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Entries {
		if resp.Entries[i].DisplayName() == name {
			return &resp.Entries[i], nil
		}
	}
	return nil, nil
}

// ListMuxes returns every mux the backend knows about. Callers filter
// to their network with Mux.BelongsTo.
func (c *Client) ListMuxes(ctx context.Context) ([]Mux, error) {
	var resp gridResponse[Mux]
	params := url.Values{"limit": {gridLimit}}
	if err := c.GetJSON(ctx, "/api/mpegts/mux/grid", params, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// DeleteMux removes a mux, trying the generic idnode delete first and
// falling back to the mux-specific endpoint that older builds require.
func (c *Client) DeleteMux(ctx context.Context, muxUUID string) error {
	if err := c.DeleteIDNode(ctx, muxUUID); err == nil {
		return nil
	}
	status, body, err := c.PostForm(ctx, "/api/mpegts/mux/delete", url.Values{"uuid": {muxUUID}})
	if err != nil {
		return err
	}
	if status != 200 {
		return &StatusError{Endpoint: "/api/mpegts/mux/delete", Code: status, Body: truncate(string(body), 200)}
	}
	return nil
}

// GetMuxClass fetches the network's declared mux-parameter schema.
func (c *Client) GetMuxClass(ctx context.Context, netUUID string) (*MuxClass, error) {
	var mc MuxClass
	params := url.Values{"uuid": {netUUID}}
	if err := c.GetJSON(ctx, "/api/mpegts/network/mux_class", params, &mc); err != nil {
		return nil, err
	}
	return &mc, nil
}

// BuildMuxConf seeds a mux configuration from the schema's declared
// defaults, skipping read-only and non-saveable fields. Hardcoding
// fields the backend version may not support causes create failures.
func BuildMuxConf(mc *MuxClass) map[string]interface{} {
	conf := make(map[string]interface{})
	for _, p := range mc.Props {
		if p.ID == "" || p.RdOnly.Bool() || p.NoSave.Bool() {
			continue
		}
		if len(p.Default) == 0 {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(p.Default, &v); err != nil {
			continue
		}
		conf[p.ID] = v
	}
	return conf
}

// CreateMux creates a mux on the network with the given configuration.
func (c *Client) CreateMux(ctx context.Context, netUUID string, conf map[string]interface{}) error {
	payload, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("tvh: encoding mux conf: %w", err)
	}
	form := url.Values{"uuid": {netUUID}, "conf": {string(payload)}}
	status, body, err := c.PostForm(ctx, "/api/mpegts/network/mux_create", form)
	if err != nil {
		return err
	}
	if status != 200 {
		return &StatusError{Endpoint: "/api/mpegts/network/mux_create", Code: status, Body: truncate(string(body), 200)}
	}
	return nil
}

// ForceScanMux queues a hardware scan of the mux. Builds without the
// scan endpoint accept a scan_state write instead; the string and
// numeric forms cover different versions.
func (c *Client) ForceScanMux(ctx context.Context, muxUUID string) error {
	status, _, err := c.PostForm(ctx, "/api/mpegts/mux/scan", url.Values{"uuid": {muxUUID}})
	if err == nil && status == 200 {
		return nil
	}
	if err != nil {
		logger.Debugf("tvh: mux scan endpoint failed for %s: %v", muxUUID, err)
	}

	if err := c.SaveIDNode(ctx, Node{"uuid": muxUUID, "scan_state": "PENDING"}); err == nil {
		return nil
	}
	return c.SaveIDNode(ctx, Node{"uuid": muxUUID, "scan_state": "1"})
}

// ListServices returns every service from the admin list view.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var resp gridResponse[Service]
	params := url.Values{"limit": {gridLimit}}
	if err := c.GetJSON(ctx, "/api/service/list", params, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ServiceMuxMap returns service uuid -> mux uuid from the service
// grid, which unlike the list view reports the multiplex reference.
func (c *Client) ServiceMuxMap(ctx context.Context) (map[string]string, error) {
	var resp gridResponse[Service]
	params := url.Values{"limit": {gridLimit}}
	if err := c.GetJSON(ctx, "/api/mpegts/service/grid", params, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(resp.Entries))
	for _, svc := range resp.Entries {
		id := svc.Identifier()
		if id == "" {
			continue
		}
		mux := svc.MultiplexUUID
		if mux == "" {
			mux = svc.ParamValue("multiplex_uuid")
		}
		out[id] = mux
	}
	return out, nil
}

// ListChannels returns every channel from the admin grid, including
// disabled ones.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	var resp gridResponse[Channel]
	params := url.Values{"all": {"1"}, "limit": {gridLimit}}
	if err := c.GetJSON(ctx, "/api/channel/grid", params, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// CreateChannel creates an enabled channel attached to one service,
// with autoname and epgauto set so the backend keeps refreshing the
// broadcast name. Returns the new channel's uuid when the build
// reports one; some only report success.
func (c *Client) CreateChannel(ctx context.Context, name, serviceUUID string) (string, error) {
	conf := map[string]interface{}{
		"enabled":  true,
		"name":     name,
		"autoname": true,
		"epgauto":  true,
		"services": []string{serviceUUID},
	}
	payload, err := json.Marshal(conf)
	if err != nil {
		return "", fmt.Errorf("tvh: encoding channel conf: %w", err)
	}
	status, body, err := c.PostForm(ctx, "/api/channel/create", url.Values{"conf": {string(payload)}})
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", &StatusError{Endpoint: "/api/channel/create", Code: status, Body: truncate(string(body), 200)}
	}

	var created struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(body, &created); err == nil && created.UUID != "" {
		return created.UUID, nil
	}
	return "", nil
}

// HardwareTree lists the children of a hardware device-tree node.
// The tree root has id "root".
func (c *Client) HardwareTree(ctx context.Context, nodeID string) ([]DeviceNode, error) {
	var nodes []DeviceNode
	params := url.Values{"uuid": {nodeID}}
	if err := c.GetJSON(ctx, "/api/hardware/tree", params, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// DisableEPGAutoGrab turns off the backend's over-the-air EPG grabber
// cron so that scans control tuner usage exclusively. Best-effort:
// field names vary across builds.
func (c *Client) DisableEPGAutoGrab(ctx context.Context) error {
	payload, err := json.Marshal(map[string]interface{}{
		"ota_initial": false,
		"ota_cron":    "",
	})
	if err != nil {
		return err
	}
	var lastStatus int
	for _, key := range []string{"node", "node[]"} {
		status, _, err := c.PostForm(ctx, "/api/epggrab/config/save", url.Values{key: {string(payload)}})
		if err != nil {
			return err
		}
		if status == 200 {
			return nil
		}
		lastStatus = status
	}
	return &StatusError{Endpoint: "/api/epggrab/config/save", Code: lastStatus}
}
