package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cachetier/internal/cache"
	"cachetier/internal/cluster"
	"cachetier/internal/config"
	"cachetier/internal/coord"
	"cachetier/internal/dlock"
	"cachetier/internal/filter"
	"cachetier/internal/guard"
	"cachetier/internal/metrics"
	"cachetier/internal/server"
	"cachetier/internal/source"
)

const (
	etcdDialTimeout = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// App is a fully wired cachetier process.
type App struct {
	cfg      config.Config
	logger   logrus.FieldLogger
	registry *prometheus.Registry

	Store   *source.Memory
	Cluster *cluster.Cluster
	Guards  map[string]*guard.Guard
	Locker  dlock.Locker
	Coord   *coord.Memory

	server  *server.Server
	clients *server.ClientManager
	closers []io.Closer
}

// New builds every component named by cfg. Nothing listens until Run.
func New(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*App, error) {
	reg := prometheus.NewRegistry()
	a := &App{
		cfg:      cfg,
		logger:   logger.WithField("node", cfg.Node.ID),
		registry: reg,
		Store:    source.NewMemory(cfg.Source.Seed),
		Guards:   make(map[string]*guard.Guard),
		Coord:    coord.NewMemory(),
		clients:  server.NewClientManager(),
	}
	a.Store.SetLatency(cfg.Source.Latency)
	m := metrics.New(reg)

	client, err := a.coordClient(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Locker, err = dlock.New(cfg.Lock.Config, client, dlock.WithLogger(a.logger), dlock.WithMetrics(m))
	if err != nil {
		a.Close()
		return nil, err
	}

	nodes := make([]*cluster.Node, 0)
	for _, rn := range cfg.BuildRingNodes() {
		f, err := filter.New(cfg.Filter)
		if err != nil {
			a.Close()
			return nil, err
		}
		c := cache.NewInMemory(cache.Config{CleanupInterval: cfg.Cache.CleanupInterval})
		a.closers = append(a.closers, c)
		nodes = append(nodes, &cluster.Node{ID: rn.ID, Addr: rn.Addr, Cache: c, Filter: f})
	}
	a.Cluster, err = cluster.New(nodes, cfg.Cluster.Replicas)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetchers := make(map[string]server.Fetcher, len(nodes))
	for _, n := range nodes {
		g, err := guard.New(n.Cache, n.Filter, a.Store,
			guard.WithPositiveTTL(cfg.Guard.PositiveTTL),
			guard.WithNegativeTTL(cfg.Guard.NegativeTTL),
			guard.WithLocker(a.Locker),
			guard.WithMetrics(m),
			guard.WithLogger(a.logger.WithField("owner", n.ID)),
		)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Guards[n.ID] = g
		fetchers[n.ID] = g
	}

	// Keys the store is known to hold are admitted by their owner's filter.
	for key := range cfg.Source.Seed {
		if err := a.Admit(key); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.server = server.New(server.Config{
		NodeID: cfg.Node.ID,
		Cache:  server.NewCacheServer(a.Cluster, fetchers, a.logger),
		Coord:  a.Coord,
		Logger: a.logger,
	})
	return a, nil
}

// coordClient connects the coordination store used by the remote backend.
func (a *App) coordClient(ctx context.Context) (dlock.Client, error) {
	if a.cfg.Lock.Backend != dlock.BackendRemote {
		return nil, nil
	}

	switch a.cfg.Lock.Coord {
	case config.CoordRedis:
		r, err := coord.DialRedis(ctx, a.cfg.Lock.RedisAddr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r)
		return r, nil
	case config.CoordEtcd:
		e, err := coord.DialEtcd(a.cfg.Lock.EtcdEndpoints, etcdDialTimeout)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, e)
		return e, nil
	case config.CoordGRPC:
		conn, err := a.clients.Conn(a.cfg.Lock.CoordAddr)
		if err != nil {
			return nil, err
		}
		return coord.NewGRPCClient(conn), nil
	default:
		return a.Coord, nil
	}
}

// Admit records key in the filter of the node that owns it.
func (a *App) Admit(key string) error {
	n, err := a.Cluster.Resolve(key)
	if err != nil {
		return err
	}
	n.Filter.Add(key)
	return nil
}

// Fetch runs GetOrFetch on the guard of the node owning key.
func (a *App) Fetch(ctx context.Context, key string) (string, bool, error) {
	n, err := a.Cluster.Resolve(key)
	if err != nil {
		return "", false, err
	}
	return a.Guards[n.ID].GetOrFetch(ctx, key)
}

// Registry exposes the process metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Run serves gRPC on lis, and metrics when configured, until ctx is done.
func (a *App) Run(ctx context.Context, lis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Serve(lis)
	})

	var metricsSrv *http.Server
	if a.cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: a.cfg.MetricsListen, Handler: mux}
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.server.Stop()
		if metricsSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			metricsSrv.Shutdown(sctx)
		}
		return nil
	})

	return g.Wait()
}

// Close releases caches and coordination clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := a.clients.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
