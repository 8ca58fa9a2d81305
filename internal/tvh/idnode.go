package tvh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/jedp/fptv/internal/logger"
)

// Node is an idnode write payload: a uuid plus the fields to change.
type Node map[string]interface{}

// encodeStrategy turns a node into one of the form payloads accepted
// by some TVHeadend build's /api/idnode/save. Strategies are pure so
// each can be tested in isolation; SaveIDNode tries them in order.
type encodeStrategy struct {
	name   string
	encode func(Node) (url.Values, error)
}

func encodeNodeJSON(node Node) (url.Values, error) {
	payload, err := json.Marshal(node)
	if err != nil {
		return nil, err
	}
	return url.Values{"node": {string(payload)}}, nil
}

func encodeNodeArrayJSON(node Node) (url.Values, error) {
	payload, err := json.Marshal(node)
	if err != nil {
		return nil, err
	}
	return url.Values{"node[]": {string(payload)}}, nil
}

// encodeLegacyFlat flattens the node into uuid plus field=value pairs,
// JSON-encoding list and object values. The oldest builds only accept
// this form.
func encodeLegacyFlat(node Node) (url.Values, error) {
	uuid, ok := node["uuid"].(string)
	if !ok || uuid == "" {
		return nil, fmt.Errorf("legacy encoding requires a uuid")
	}
	form := url.Values{"uuid": {uuid}}
	for k, v := range node {
		if k == "uuid" || k == "class" {
			continue
		}
		switch v := v.(type) {
		case string:
			form.Set(k, v)
		case []string, []interface{}, map[string]interface{}:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			form.Set(k, string(encoded))
		default:
			form.Set(k, fmt.Sprint(v))
		}
	}
	return form, nil
}

var saveStrategies = []encodeStrategy{
	{"node", encodeNodeJSON},
	{"node[]", encodeNodeArrayJSON},
	{"legacy", encodeLegacyFlat},
}

// LoadIDNode fetches an idnode's full parameter set.
func (c *Client) LoadIDNode(ctx context.Context, uuid string) (*IDNodeEntry, error) {
	var resp gridResponse[IDNodeEntry]
	params := url.Values{"uuid": {uuid}}
	if err := c.GetJSON(ctx, "/api/idnode/load", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Entries) == 0 {
		return nil, &DecodeError{Endpoint: "/api/idnode/load", Err: fmt.Errorf("no entries for uuid %s", uuid)}
	}
	return &resp.Entries[0], nil
}

// detectClass fills node["class"] via a load round trip when absent.
// Some builds refuse saves without the class field.
func (c *Client) detectClass(ctx context.Context, node Node) {
	if _, ok := node["class"]; ok {
		return
	}
	uuid, ok := node["uuid"].(string)
	if !ok || uuid == "" {
		return
	}
	entry, err := c.LoadIDNode(ctx, uuid)
	if err != nil {
		logger.Debugf("tvh: class auto-detect failed for %s: %v", uuid, err)
		return
	}
	if entry.Class != "" {
		node["class"] = entry.Class
	}
}

// SaveIDNode writes node changes, trying each payload encoding until
// one returns 200. Returns an error only when all encodings fail.
func (c *Client) SaveIDNode(ctx context.Context, node Node) error {
	c.detectClass(ctx, node)

	var lastStatus int
	var lastBody []byte
	for _, strategy := range saveStrategies {
		form, err := strategy.encode(node)
		if err != nil {
			logger.Debugf("tvh: idnode save encoding %s not applicable: %v", strategy.name, err)
			continue
		}
		status, body, err := c.PostForm(ctx, "/api/idnode/save", form)
		if err != nil {
			return err
		}
		if status == 200 {
			logger.Debugf("tvh: idnode save succeeded with %s encoding (uuid=%v)", strategy.name, node["uuid"])
			return nil
		}
		lastStatus, lastBody = status, body
	}
	return &StatusError{Endpoint: "/api/idnode/save", Code: lastStatus, Body: truncate(string(lastBody), 200)}
}

// SaveIDNodeParams writes changes in the params list format matching
// the idnode/load structure. classHint may be empty, in which case the
// class is auto-detected.
func (c *Client) SaveIDNodeParams(ctx context.Context, uuid, classHint string, changes map[string]interface{}) error {
	if classHint == "" {
		entry, err := c.LoadIDNode(ctx, uuid)
		if err != nil {
			return fmt.Errorf("tvh: class detection for %s: %w", uuid, err)
		}
		if entry.Class == "" {
			return fmt.Errorf("tvh: no class reported for %s", uuid)
		}
		classHint = entry.Class
	}

	// Stable param order; nil values trigger 400s on some builds.
	keys := make([]string, 0, len(changes))
	for k, v := range changes {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	params := make([]map[string]interface{}, 0, len(keys))
	for _, k := range keys {
		params = append(params, map[string]interface{}{"id": k, "value": changes[k]})
	}

	node := Node{
		"uuid":   uuid,
		"class":  classHint,
		"params": params,
	}

	payload, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("tvh: encoding params for %s: %w", uuid, err)
	}

	var lastStatus int
	var lastBody []byte
	for _, key := range []string{"node", "node[]"} {
		status, body, err := c.PostForm(ctx, "/api/idnode/save", url.Values{key: {string(payload)}})
		if err != nil {
			return err
		}
		if status == 200 {
			return nil
		}
		lastStatus, lastBody = status, body
	}
	return &StatusError{Endpoint: "/api/idnode/save", Code: lastStatus, Body: truncate(string(lastBody), 200)}
}

// DeleteIDNode removes an idnode by uuid.
func (c *Client) DeleteIDNode(ctx context.Context, uuid string) error {
	status, body, err := c.PostForm(ctx, "/api/idnode/delete", url.Values{"uuid": {uuid}})
	if err != nil {
		return err
	}
	if status != 200 {
		return &StatusError{Endpoint: "/api/idnode/delete", Code: status, Body: truncate(string(body), 200)}
	}
	return nil
}
