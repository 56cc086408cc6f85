package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/kmarkham/spanset/pkg/cluster"
	"github.com/kmarkham/spanset/pkg/setops"
	"github.com/kmarkham/spanset/pkg/shardclient"
)

func main() {
	shards := flag.String("shards", "localhost:8080", "comma-separated shard addresses")
	n := flag.Int("n", 2000, "operations")
	conc := flag.Int("c", 16, "concurrency")
	keys := flag.Int("keys", 4, "keys per operation")
	seed := flag.Int("seed", 64, "members seeded per key")
	flag.Parse()

	topo := cluster.NewTopology()
	for i, raw := range strings.Split(*shards, ",") {
		addr, err := cluster.ParseShardAddress(strings.TrimSpace(raw))
		if err != nil {
			log.Fatalf("bad shard address %q: %v", raw, err)
		}
		topo.Add(fmt.Sprintf("shard-%d", i), addr)
	}

	client := shardclient.New(topo)
	engine := setops.New(topo, client, client)
	ctx := context.Background()

	// Seed: spread keys and members across the cluster so most operations
	// take the scatter path.
	keyspace := make([][]byte, *keys*8)
	for i := range keyspace {
		keyspace[i] = fmt.Appendf(nil, "bench-key-%d", i)
		members := make([][]byte, *seed)
		for j := range members {
			members[j] = fmt.Appendf(nil, "m-%d", rand.Intn(*seed*4))
		}
		if _, err := client.AddMembers(ctx, keyspace[i], members...); err != nil {
			log.Fatalf("seed %q: %v", keyspace[i], err)
		}
	}

	wg := sync.WaitGroup{}
	start := time.Now()
	ch := make(chan int, *conc)

	for i := 0; i < *n; i++ {
		wg.Add(1)
		ch <- 1
		go func(i int) {
			defer wg.Done()
			defer func() { <-ch }()

			picked := make([][]byte, *keys)
			for j := range picked {
				picked[j] = keyspace[rand.Intn(len(keyspace))]
			}

			var err error
			switch i % 3 {
			case 0:
				_, err = engine.Inter(ctx, picked...)
			case 1:
				_, err = engine.Union(ctx, picked...)
			default:
				_, err = engine.Diff(ctx, picked...)
			}
			if err != nil {
				log.Printf("op %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	dur := time.Since(start)
	fmt.Printf("Completed %d ops in %s (%.2f ops/s)\n", *n, dur, float64(*n)/dur.Seconds())
}
