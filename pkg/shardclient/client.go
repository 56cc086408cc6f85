// Package shardclient talks to shard nodes over their HTTP API. The
// Client satisfies both collaborator contracts of the setops engine:
// Fetcher (reads routed to an explicit shard address) and Executor
// (commands routed through the topology to the owning shard).
package shardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kmarkham/spanset/pkg/cluster"
	"github.com/kmarkham/spanset/pkg/node"
	"github.com/kmarkham/spanset/pkg/setops"
)

type Client struct {
	topo *cluster.Topology
	http *http.Client
}

func New(topo *cluster.Topology) *Client {
	return &Client{
		topo: topo,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// FetchMembers reads the full membership of key from the given shard. A
// key with no stored set comes back as an empty membership.
func (c *Client) FetchMembers(ctx context.Context, shard cluster.ShardAddress, key []byte) ([][]byte, error) {
	var resp node.MembersResponse
	url := fmt.Sprintf("http://%s/set/%s/members", shard, node.EncodeKey(key))
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// RunMultiKey executes the native multi-key command on the shard owning
// the keys' slot.
func (c *Client) RunMultiKey(ctx context.Context, op setops.Op, keys ...[]byte) ([][]byte, error) {
	shard, err := c.topo.Resolve(keys[0])
	if err != nil {
		return nil, err
	}
	var resp node.MembersResponse
	req := node.MultiKeyRequest{Op: op.String(), Keys: keys}
	if err := c.postJSON(ctx, fmt.Sprintf("http://%s/multikey", shard), req, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// RunMultiKeyStore executes the native multi-key store command on the
// shard owning the destination's slot.
func (c *Client) RunMultiKeyStore(ctx context.Context, op setops.Op, dest []byte, keys ...[]byte) (int64, error) {
	shard, err := c.topo.Resolve(dest)
	if err != nil {
		return 0, err
	}
	var resp node.StoreResponse
	req := node.MultiKeyStoreRequest{Op: op.String(), Dest: dest, Keys: keys}
	if err := c.postJSON(ctx, fmt.Sprintf("http://%s/multikey/store", shard), req, &resp); err != nil {
		return 0, err
	}
	return resp.Stored, nil
}

// MoveMember runs the atomic same-slot move on the shard owning src.
func (c *Client) MoveMember(ctx context.Context, src, dest, member []byte) (bool, error) {
	shard, err := c.topo.Resolve(src)
	if err != nil {
		return false, err
	}
	var resp node.MoveResponse
	req := node.MoveRequest{Src: src, Dest: dest, Member: member}
	if err := c.postJSON(ctx, fmt.Sprintf("http://%s/move", shard), req, &resp); err != nil {
		return false, err
	}
	return resp.Moved, nil
}

func (c *Client) AddMembers(ctx context.Context, key []byte, members ...[]byte) (int64, error) {
	shard, err := c.topo.Resolve(key)
	if err != nil {
		return 0, err
	}
	var resp node.AddResponse
	url := fmt.Sprintf("http://%s/set/%s/add", shard, node.EncodeKey(key))
	if err := c.postJSON(ctx, url, node.MembersRequest{Members: members}, &resp); err != nil {
		return 0, err
	}
	return resp.Added, nil
}

func (c *Client) RemoveMembers(ctx context.Context, key []byte, members ...[]byte) (int64, error) {
	shard, err := c.topo.Resolve(key)
	if err != nil {
		return 0, err
	}
	var resp node.RemoveResponse
	url := fmt.Sprintf("http://%s/set/%s/remove", shard, node.EncodeKey(key))
	if err := c.postJSON(ctx, url, node.MembersRequest{Members: members}, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *Client) IsMember(ctx context.Context, key, member []byte) (bool, error) {
	shard, err := c.topo.Resolve(key)
	if err != nil {
		return false, err
	}
	var resp node.ContainsResponse
	url := fmt.Sprintf("http://%s/set/%s/contains", shard, node.EncodeKey(key))
	if err := c.postJSON(ctx, url, node.MemberRequest{Member: member}, &resp); err != nil {
		return false, err
	}
	return resp.Contains, nil
}

func (c *Client) Exists(ctx context.Context, key []byte) (bool, error) {
	shard, err := c.topo.Resolve(key)
	if err != nil {
		return false, err
	}
	var resp node.ExistsResponse
	url := fmt.Sprintf("http://%s/set/%s/exists", shard, node.EncodeKey(key))
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
