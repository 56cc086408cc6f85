// Package discovery registers shards in etcd and feeds membership
// changes to the slot topology. It is bootstrap glue: consistency of the
// shard registry is etcd's problem, not ours.
package discovery

import (
	"context"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const shardPrefix = "/spanset/shards/"

func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// RegisterShard writes id -> addr under a leased key and keeps the lease
// alive until the returned cancel func is called.
func RegisterShard(cli *clientv3.Client, id, addr string, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(context.TODO(), ttl)
	if err != nil {
		return 0, nil, err
	}
	_, err = cli.Put(context.TODO(), shardPrefix+id, addr, clientv3.WithLease(lease.ID))
	if err != nil {
		return 0, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, err
	}
	go func() {
		for range ch {
		}
	}()

	return lease.ID, cancel, nil
}

// LoadShards returns the currently registered shards as id -> addr.
func LoadShards(ctx context.Context, cli *clientv3.Client) (map[string]string, error) {
	resp, err := cli.Get(ctx, shardPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	shards := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		shards[strings.TrimPrefix(string(kv.Key), shardPrefix)] = string(kv.Value)
	}
	return shards, nil
}

// WatchShards invokes fn with a full membership snapshot on every change
// under the shard prefix. It returns immediately; the watch runs until
// the client closes.
func WatchShards(cli *clientv3.Client, fn func(map[string]string)) {
	go func() {
		for range cli.Watch(context.Background(), shardPrefix, clientv3.WithPrefix()) {
			shards, err := LoadShards(context.Background(), cli)
			if err != nil {
				continue
			}
			fn(shards)
		}
	}()
}
