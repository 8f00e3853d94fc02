package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/snapcache/cache"
	pmet "github.com/IvanBrykalov/snapcache/metrics/prom"
	"github.com/IvanBrykalov/snapcache/snapshot"
)

type benchFlags struct {
	workers  int
	duration time.Duration
	readPct  int
	keys     int
	zipfS    float64
	zipfV    float64
	seed     int64
	preload  int
	ttl      time.Duration
	persist  bool

	pprofAddr   string
	metricsAddr string
}

// guarded serializes access to a cache shared by the bench workers.
type guarded struct {
	mu sync.Mutex
	c  cache.Cache[string]
}

func (g *guarded) get(k string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.c.Get(k)
	return ok
}

func (g *guarded) set(k, v string) {
	g.mu.Lock()
	g.c.Set(k, v)
	g.mu.Unlock()
}

func buildBenchCmd() *cobra.Command {
	var f benchFlags
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic Zipf workload against the cache",
		Long: "Run a synthetic Zipf workload. The cache is memory-only unless --persist is\n" +
			"given, in which case every mutation rewrites the configured snapshot file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	fl.DurationVar(&f.duration, "duration", 10*time.Second, "benchmark duration")
	fl.IntVar(&f.readPct, "reads", 80, "read percentage [0..100]")
	fl.IntVar(&f.keys, "keys", 1_000_000, "keyspace size")
	fl.Float64Var(&f.zipfS, "zipf-s", 1.1, "Zipf s > 1 (skew)")
	fl.Float64Var(&f.zipfV, "zipf-v", 1.0, "Zipf v")
	fl.Int64Var(&f.seed, "seed", time.Now().UnixNano(), "random seed")
	fl.IntVar(&f.preload, "preload", 0, "preload entries (0 = max-size/2)")
	fl.DurationVar(&f.ttl, "ttl", 0, "default TTL for written entries (0 = none)")
	fl.BoolVar(&f.persist, "persist", false, "write the configured snapshot file after every mutation")
	fl.StringVar(&f.pprofAddr, "pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	fl.StringVar(&f.metricsAddr, "http", "", "serve Prometheus metrics at addr; empty = disabled")
	return cmd
}

func runBench(cmd *cobra.Command, f benchFlags) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.log.Sync() }()
	log := a.log.Sugar()

	if f.readPct < 0 || f.readPct > 100 {
		return fmt.Errorf("--reads must be within [0,100], got %d", f.readPct)
	}
	if f.keys < 1 {
		return fmt.Errorf("--keys must be >= 1, got %d", f.keys)
	}
	if f.zipfS <= 1 || f.zipfV < 1 {
		return fmt.Errorf("zipf parameters require s > 1 and v >= 1")
	}

	if f.pprofAddr != "" {
		go func() {
			log.Infow("pprof: serving", "addr", f.pprofAddr)
			log.Warnw("pprof server stopped", "err", http.ListenAndServe(f.pprofAddr, nil))
		}()
	}

	metrics := pmet.New(nil, "snapcache", "bench", nil)
	if f.metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Infow("metrics: serving", "addr", f.metricsAddr)
			log.Warnw("metrics server stopped", "err", http.ListenAndServe(f.metricsAddr, nil))
		}()
	}

	opt := cache.Options[string]{
		MaxSize:    a.cfg.Cache.MaxSize,
		DefaultTTL: f.ttl,
		Metrics:    metrics,
		Logger:     a.log,
	}
	if f.persist {
		opt.Snapshot = snapshot.NewFile(a.cfg.Cache.SnapshotPath)
	}
	c, err := cache.New[string](opt)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	g := &guarded{c: c}

	// Preload to get a realistic hit-rate.
	pl := f.preload
	if pl == 0 {
		pl = opt.MaxSize / 2
	}
	for i := 0; i < pl; i++ {
		g.set("k:"+strconv.Itoa(i), "v"+strconv.Itoa(i))
	}

	workers := f.workers
	if workers <= 0 {
		workers = 1
	}
	keysMax := uint64(f.keys - 1)

	var reads, writes, hits, misses, total atomic.Uint64
	ctx, cancel := context.WithTimeout(cmd.Context(), f.duration)
	defer cancel()

	start := time.Now()
	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		id := w
		eg.Go(func() error {
			// rand.Rand is not goroutine-safe: one generator per worker.
			r := rand.New(rand.NewSource(f.seed + int64(id)*9973))
			zipf := rand.NewZipf(r, f.zipfS, f.zipfV, keysMax)
			key := func() string { return "k:" + strconv.FormatUint(zipf.Uint64(), 10) }

			for ctx.Err() == nil {
				total.Add(1)
				if int(r.Int31n(100)) < f.readPct {
					reads.Add(1)
					if g.get(key()) {
						hits.Add(1)
					} else {
						misses.Add(1)
					}
					continue
				}
				writes.Add(1)
				g.set(key(), "v"+strconv.Itoa(r.Int()))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	ops, readsN, hitsN := total.Load(), reads.Load(), hits.Load()
	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "max-size=%d workers=%d keys=%d persist=%t dur=%v seed=%d\n",
		opt.MaxSize, workers, f.keys, f.persist, elapsed, f.seed)
	fmt.Fprintf(out, "ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writes.Load())
	fmt.Fprintf(out, "hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, misses.Load(), hitRate)
	fmt.Fprintf(out, "Len()=%d\n", c.Len())
	return nil
}
