// Package node exposes one shard's set storage over HTTP and routes
// single-key requests to the owning shard when this node is not it.
package node

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kmarkham/spanset/internal/telemetry"
	"github.com/kmarkham/spanset/pkg/cluster"
	"github.com/kmarkham/spanset/pkg/setstore"
)

type Node struct {
	store *setstore.Store
	topo  *cluster.Topology
	self  cluster.ShardAddress
	log   *zap.Logger
}

func New(store *setstore.Store, topo *cluster.Topology, self cluster.ShardAddress, log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{store: store, topo: topo, self: self, log: log}
}

func (n *Node) AddShard(id string, addr cluster.ShardAddress) {
	n.topo.Add(id, addr)
}

func (n *Node) RemoveShard(id string) {
	n.topo.Remove(id)
}

func (n *Node) ClearShards() {
	n.topo.Clear()
}

func (n *Node) Self() cluster.ShardAddress {
	return n.self
}

// Routes returns the node's HTTP mux with telemetry instrumentation.
func (n *Node) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", n.Healthz)
	mux.HandleFunc("/info", n.Info)
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.Handle("GET /set/{key}/members", telemetry.Instrument("smembers", http.HandlerFunc(n.Members)))
	mux.Handle("GET /set/{key}/exists", telemetry.Instrument("exists", http.HandlerFunc(n.Exists)))
	mux.Handle("GET /set/{key}/card", telemetry.Instrument("scard", http.HandlerFunc(n.Card)))
	mux.Handle("POST /set/{key}/add", telemetry.Instrument("sadd", http.HandlerFunc(n.Add)))
	mux.Handle("POST /set/{key}/remove", telemetry.Instrument("srem", http.HandlerFunc(n.Remove)))
	mux.Handle("POST /set/{key}/contains", telemetry.Instrument("sismember", http.HandlerFunc(n.Contains)))
	mux.Handle("POST /multikey", telemetry.Instrument("multikey", http.HandlerFunc(n.MultiKey)))
	mux.Handle("POST /multikey/store", telemetry.Instrument("multikey_store", http.HandlerFunc(n.MultiKeyStore)))
	mux.Handle("POST /move", telemetry.Instrument("smove", http.HandlerFunc(n.Move)))
	return mux
}
