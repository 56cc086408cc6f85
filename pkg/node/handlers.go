package node

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kmarkham/spanset/pkg/cluster"
	"github.com/kmarkham/spanset/pkg/slot"
)

// Healthz returns 200 OK to indicate the node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes a JSON payload with the process ID, current time, and key count.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, InfoResponse{PID: os.Getpid(), Now: time.Now(), Keys: n.store.Len()})
}

// Members returns the full membership of a key's set. A missing key is an
// empty set, not an error.
func (n *Node) Members(w http.ResponseWriter, req *http.Request) {
	key, owner, ok := n.routeKey(w, req)
	if !ok {
		return
	}
	if owner != n.self {
		n.forward(w, req, owner)
		return
	}
	writeJSON(w, MembersResponse{Members: n.store.SMembers(key)})
}

// Exists reports whether a key holds a set.
func (n *Node) Exists(w http.ResponseWriter, req *http.Request) {
	key, owner, ok := n.routeKey(w, req)
	if !ok {
		return
	}
	if owner != n.self {
		n.forward(w, req, owner)
		return
	}
	writeJSON(w, ExistsResponse{Exists: n.store.Exists(key)})
}

// Card returns the size of a key's set.
func (n *Node) Card(w http.ResponseWriter, req *http.Request) {
	key, owner, ok := n.routeKey(w, req)
	if !ok {
		return
	}
	if owner != n.self {
		n.forward(w, req, owner)
		return
	}
	writeJSON(w, CardResponse{Card: n.store.SCard(key)})
}

// Add inserts members into a key's set.
func (n *Node) Add(w http.ResponseWriter, req *http.Request) {
	key, owner, ok := n.routeKey(w, req)
	if !ok {
		return
	}
	if owner != n.self {
		n.forward(w, req, owner)
		return
	}
	var body MembersRequest
	if !readJSON(w, req, &body) {
		return
	}
	writeJSON(w, AddResponse{Added: int64(n.store.SAdd(key, body.Members...))})
}

// Remove deletes members from a key's set.
func (n *Node) Remove(w http.ResponseWriter, req *http.Request) {
	key, owner, ok := n.routeKey(w, req)
	if !ok {
		return
	}
	if owner != n.self {
		n.forward(w, req, owner)
		return
	}
	var body MembersRequest
	if !readJSON(w, req, &body) {
		return
	}
	writeJSON(w, RemoveResponse{Removed: int64(n.store.SRem(key, body.Members...))})
}

// Contains reports whether a member is in a key's set.
func (n *Node) Contains(w http.ResponseWriter, req *http.Request) {
	key, owner, ok := n.routeKey(w, req)
	if !ok {
		return
	}
	if owner != n.self {
		n.forward(w, req, owner)
		return
	}
	var body MemberRequest
	if !readJSON(w, req, &body) {
		return
	}
	writeJSON(w, ContainsResponse{Contains: n.store.SIsMember(key, body.Member)})
}

// MultiKey executes a native multi-key set command. Every key must hash
// to one slot; cross-slot groups are rejected so the atomicity claim of
// this endpoint always holds.
func (n *Node) MultiKey(w http.ResponseWriter, req *http.Request) {
	var body MultiKeyRequest
	if !readJSON(w, req, &body) {
		return
	}
	if len(body.Keys) == 0 {
		http.Error(w, "at least one key required", http.StatusBadRequest)
		return
	}
	if !slot.Same(body.Keys...) {
		http.Error(w, "CROSSSLOT keys do not hash to the same slot", http.StatusBadRequest)
		return
	}
	owner, ok := n.ownerOf(w, body.Keys[0])
	if !ok {
		return
	}
	if owner != n.self {
		n.forwardJSON(w, req, owner, body)
		return
	}

	var members [][]byte
	switch body.Op {
	case "inter":
		members = n.store.SInter(body.Keys...)
	case "union":
		members = n.store.SUnion(body.Keys...)
	case "diff":
		members = n.store.SDiff(body.Keys...)
	default:
		http.Error(w, "unknown op", http.StatusBadRequest)
		return
	}
	writeJSON(w, MembersResponse{Members: members})
}

// MultiKeyStore executes a native multi-key store command. The
// destination key takes part in the same-slot requirement.
func (n *Node) MultiKeyStore(w http.ResponseWriter, req *http.Request) {
	var body MultiKeyStoreRequest
	if !readJSON(w, req, &body) {
		return
	}
	if len(body.Keys) == 0 {
		http.Error(w, "at least one key required", http.StatusBadRequest)
		return
	}
	all := append([][]byte{body.Dest}, body.Keys...)
	if !slot.Same(all...) {
		http.Error(w, "CROSSSLOT keys do not hash to the same slot", http.StatusBadRequest)
		return
	}
	owner, ok := n.ownerOf(w, body.Dest)
	if !ok {
		return
	}
	if owner != n.self {
		n.forwardJSON(w, req, owner, body)
		return
	}

	var stored int
	switch body.Op {
	case "inter":
		stored = n.store.SInterStore(body.Dest, body.Keys...)
	case "union":
		stored = n.store.SUnionStore(body.Dest, body.Keys...)
	case "diff":
		stored = n.store.SDiffStore(body.Dest, body.Keys...)
	default:
		http.Error(w, "unknown op", http.StatusBadRequest)
		return
	}
	writeJSON(w, StoreResponse{Stored: int64(stored)})
}

// Move atomically moves a member between two sets in one slot.
func (n *Node) Move(w http.ResponseWriter, req *http.Request) {
	var body MoveRequest
	if !readJSON(w, req, &body) {
		return
	}
	if !slot.Same(body.Src, body.Dest) {
		http.Error(w, "CROSSSLOT keys do not hash to the same slot", http.StatusBadRequest)
		return
	}
	owner, ok := n.ownerOf(w, body.Src)
	if !ok {
		return
	}
	if owner != n.self {
		n.forwardJSON(w, req, owner, body)
		return
	}
	writeJSON(w, MoveResponse{Moved: n.store.SMove(body.Src, body.Dest, body.Member)})
}

// routeKey decodes the path key and resolves its owner. On failure it has
// already written the error response.
func (n *Node) routeKey(w http.ResponseWriter, req *http.Request) ([]byte, cluster.ShardAddress, bool) {
	key, err := DecodeKey(req.PathValue("key"))
	if err != nil {
		http.Error(w, "bad key encoding", http.StatusBadRequest)
		return nil, cluster.ShardAddress{}, false
	}
	owner, ok := n.ownerOf(w, key)
	if !ok {
		return nil, cluster.ShardAddress{}, false
	}
	return key, owner, true
}

func (n *Node) ownerOf(w http.ResponseWriter, key []byte) (cluster.ShardAddress, bool) {
	owner, err := n.topo.Resolve(key)
	if err != nil {
		http.Error(w, "no owner for key", http.StatusServiceUnavailable)
		return cluster.ShardAddress{}, false
	}
	return owner, true
}

// forward relays a request whose body has not been consumed to the node
// that owns the key.
func (n *Node) forward(w http.ResponseWriter, req *http.Request, owner cluster.ShardAddress) {
	if owner == n.self {
		// last-resort safety; shouldn't happen if the handler compare is correct
		http.Error(w, "refusing to forward to self", http.StatusInternalServerError)
		return
	}
	n.log.Debug("forward", zap.String("path", req.URL.Path), zap.String("owner", owner.String()))
	n.proxy(w, req, owner, req.Body)
}

// forwardJSON relays a request whose body was already decoded.
func (n *Node) forwardJSON(w http.ResponseWriter, req *http.Request, owner cluster.ShardAddress, body any) {
	if owner == n.self {
		http.Error(w, "refusing to forward to self", http.StatusInternalServerError)
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	n.log.Debug("forward", zap.String("path", req.URL.Path), zap.String("owner", owner.String()))
	n.proxy(w, req, owner, io.NopCloser(bytes.NewReader(data)))
}

func (n *Node) proxy(w http.ResponseWriter, req *http.Request, owner cluster.ShardAddress, body io.Reader) {
	target := *req.URL
	target.Scheme = "http"
	target.Host = owner.String()

	out, err := http.NewRequestWithContext(req.Context(), req.Method, target.String(), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	out.Header = req.Header.Clone()
	out.Header.Set("X-Forwarded-For", req.RemoteAddr)

	resp, err := http.DefaultClient.Do(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// readJSON decodes the request body, writing a 400 on failure.
func readJSON(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
