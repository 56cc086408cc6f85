package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/kmarkham/spanset/discovery"
	"github.com/kmarkham/spanset/pkg/cluster"
	"github.com/kmarkham/spanset/pkg/node"
	"github.com/kmarkham/spanset/pkg/setstore"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	id := os.Getenv("SELF_ID")
	selfAddr := os.Getenv("SELF_ADDR")
	if id == "" || selfAddr == "" {
		log.Fatal("SELF_ID and SELF_ADDR must be set")
	}
	self, err := cluster.ParseShardAddress(selfAddr)
	if err != nil {
		log.Fatal("bad SELF_ADDR", zap.Error(err))
	}

	endpoints := []string{"http://etcd:2379"}
	if v := os.Getenv("ETCD_ENDPOINTS"); v != "" {
		endpoints = strings.Split(v, ",")
	}
	listen := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listen = v
	}

	// 1. This node's storage and its view of the slot topology.
	store := setstore.NewStore()
	topo := cluster.NewTopology()
	n := node.New(store, topo, self, log)

	// 2. etcd client
	cli, err := discovery.NewClient(endpoints)
	if err != nil {
		log.Fatal("etcd client", zap.Error(err))
	}
	defer cli.Close()
	log.Info("etcd client ready", zap.Strings("endpoints", cli.Endpoints()))

	// 3. Bootstrap the currently registered shards into the topology.
	shards, err := discovery.LoadShards(context.TODO(), cli)
	if err != nil {
		log.Fatal("bootstrap shards", zap.Error(err))
	}
	applyShards(n, log, shards)

	// 4. Register this shard.
	leaseID, cancel, err := discovery.RegisterShard(cli, id, self.String(), 10)
	if err != nil {
		log.Fatal("register shard", zap.Error(err))
	}
	defer func() {
		cancel()
		_, _ = cli.Revoke(context.TODO(), leaseID)
	}()
	log.Info("registered", zap.String("id", id), zap.String("addr", self.String()))

	// 5. Track membership changes.
	discovery.WatchShards(cli, func(shards map[string]string) {
		n.ClearShards()
		applyShards(n, log, shards)
	})

	// 6. Serve the shard API.
	log.Info("listening", zap.String("addr", listen))
	if err := http.ListenAndServe(listen, n.Routes()); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}

func applyShards(n *node.Node, log *zap.Logger, shards map[string]string) {
	for id, raw := range shards {
		addr, err := cluster.ParseShardAddress(raw)
		if err != nil {
			log.Warn("skipping shard with bad address",
				zap.String("id", id), zap.String("addr", raw), zap.Error(err))
			continue
		}
		log.Info("shard", zap.String("id", id), zap.String("addr", addr.String()))
		n.AddShard(id, addr)
	}
}
