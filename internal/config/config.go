package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"cachetier/internal/dlock"
	"cachetier/internal/filter"
	"cachetier/internal/guard"
	"cachetier/internal/ring"
)

// Coordination stores usable by the remote lock backend.
const (
	CoordMemory = "memory"
	CoordRedis  = "redis"
	CoordEtcd   = "etcd"
	CoordGRPC   = "grpc"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Peer represents a peer node in the cluster.
type Peer struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// NodeConfig identifies this process.
type NodeConfig struct {
	ID     string `yaml:"id"`
	Listen string `yaml:"listen"`
}

// ClusterConfig describes the ring membership.
type ClusterConfig struct {
	Peers    []Peer `yaml:"peers"`
	Replicas int    `yaml:"replicas"`
}

// GuardConfig holds the stampede guard TTLs.
type GuardConfig struct {
	PositiveTTL time.Duration `yaml:"positive_ttl"`
	NegativeTTL time.Duration `yaml:"negative_ttl"`
}

// CacheConfig tunes the node-local caches.
type CacheConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LockConfig selects the per-key lock backend and, for the remote backend,
// its coordination store.
type LockConfig struct {
	dlock.Config  `yaml:",inline"`
	Coord         string   `yaml:"coord"`
	RedisAddr     string   `yaml:"redis_addr"`
	EtcdEndpoints []string `yaml:"etcd_endpoints"`
	CoordAddr     string   `yaml:"coord_addr"`
}

// SourceConfig seeds the in-process backing store.
type SourceConfig struct {
	Seed    map[string]string `yaml:"seed"`
	Latency time.Duration     `yaml:"latency"`
}

// Config holds the node configuration.
type Config struct {
	Node     NodeConfig    `yaml:"node"`
	Cluster  ClusterConfig `yaml:"cluster"`
	Guard    GuardConfig   `yaml:"guard"`
	Filter   filter.Config `yaml:"filter"`
	Cache    CacheConfig   `yaml:"cache"`
	Lock     LockConfig    `yaml:"lock"`
	Source   SourceConfig  `yaml:"source"`
	LogLevel string        `yaml:"log_level"`

	// MetricsListen serves /metrics over HTTP when set.
	MetricsListen string `yaml:"metrics_listen"`
}

// Default returns a single-node configuration with library defaults.
func Default() Config {
	return Config{
		Node:    NodeConfig{ID: "node-1", Listen: "127.0.0.1:50051"},
		Cluster: ClusterConfig{Replicas: ring.DefaultReplicas},
		Guard: GuardConfig{
			PositiveTTL: guard.DefaultPositiveTTL,
			NegativeTTL: guard.DefaultNegativeTTL,
		},
		Filter: filter.Config{Kind: filter.KindExact},
		Cache:  CacheConfig{CleanupInterval: time.Minute},
		Lock: LockConfig{
			Config: dlock.Config{
				Backend:        dlock.BackendLocal,
				TTL:            dlock.DefaultTTL,
				RetryDelay:     dlock.DefaultRetryDelay,
				DeadlineFactor: dlock.DefaultDeadlineFactor,
				KeyPrefix:      dlock.DefaultKeyPrefix,
			},
			Coord: CoordMemory,
		},
		LogLevel: "info",
	}
}

// Load reads path over Default, applies environment overrides, and validates.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CACHETIER_* environment variables.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"CACHETIER_NODE_ID":      &c.Node.ID,
		"CACHETIER_LISTEN":       &c.Node.Listen,
		"CACHETIER_LOCK_BACKEND": &c.Lock.Backend,
		"CACHETIER_LOCK_DIR":     &c.Lock.Dir,
		"CACHETIER_COORD":        &c.Lock.Coord,
		"CACHETIER_REDIS_ADDR":   &c.Lock.RedisAddr,
		"CACHETIER_COORD_ADDR":   &c.Lock.CoordAddr,
		"CACHETIER_LOG_LEVEL":    &c.LogLevel,
		"CACHETIER_METRICS":      &c.MetricsListen,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("CACHETIER_PEERS"); ok {
		peers, err := ParsePeers(v)
		if err != nil {
			return fmt.Errorf("config: CACHETIER_PEERS: %w", err)
		}
		c.Cluster.Peers = peers
	}
	if v, ok := os.LookupEnv("CACHETIER_REPLICAS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: CACHETIER_REPLICAS: %w", err)
		}
		c.Cluster.Replicas = n
	}
	if v, ok := os.LookupEnv("CACHETIER_ETCD_ENDPOINTS"); ok {
		c.Lock.EtcdEndpoints = splitList(v)
	}
	return nil
}

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("%w: node.id is required", ErrInvalid)
	}
	if c.Node.Listen == "" {
		return fmt.Errorf("%w: node.listen is required", ErrInvalid)
	}
	if c.Cluster.Replicas <= 0 {
		return fmt.Errorf("%w: cluster.replicas must be positive", ErrInvalid)
	}

	ids := make([]string, 0, len(c.Cluster.Peers))
	for _, p := range c.Cluster.Peers {
		if p.ID != c.Node.ID {
			ids = append(ids, p.ID)
		}
	}
	slices.Sort(ids)
	if len(slices.Compact(slices.Clone(ids))) != len(ids) {
		return fmt.Errorf("%w: duplicate peer id in %v", ErrInvalid, ids)
	}

	if c.Guard.NegativeTTL <= 0 || c.Guard.NegativeTTL >= c.Guard.PositiveTTL {
		return fmt.Errorf("%w: guard.negative_ttl must be positive and below guard.positive_ttl", ErrInvalid)
	}

	if !slices.Contains([]string{"", filter.KindExact, filter.KindBloom}, c.Filter.Kind) {
		return fmt.Errorf("%w: unknown filter.kind %q", ErrInvalid, c.Filter.Kind)
	}

	switch c.Lock.Backend {
	case dlock.BackendLocal:
	case dlock.BackendFile:
		if c.Lock.Dir == "" {
			return fmt.Errorf("%w: lock.dir is required for the file backend", ErrInvalid)
		}
	case dlock.BackendRemote:
		if err := c.validateCoord(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown lock.backend %q", ErrInvalid, c.Lock.Backend)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c *Config) validateCoord() error {
	switch c.Lock.Coord {
	case CoordMemory:
	case CoordRedis:
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("%w: lock.redis_addr is required for coord %s", ErrInvalid, CoordRedis)
		}
	case CoordEtcd:
		if len(c.Lock.EtcdEndpoints) == 0 {
			return fmt.Errorf("%w: lock.etcd_endpoints is required for coord %s", ErrInvalid, CoordEtcd)
		}
	case CoordGRPC:
		if c.Lock.CoordAddr == "" {
			return fmt.Errorf("%w: lock.coord_addr is required for coord %s", ErrInvalid, CoordGRPC)
		}
	default:
		return fmt.Errorf("%w: unknown lock.coord %q", ErrInvalid, c.Lock.Coord)
	}
	return nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// BuildRingNodes converts config peers + self into ring.Node slice.
// Includes self node in the list.
func (c *Config) BuildRingNodes() []ring.Node {
	nodes := make([]ring.Node, 0, len(c.Cluster.Peers)+1)

	nodes = append(nodes, ring.Node{
		ID:   c.Node.ID,
		Addr: c.Node.Listen,
	})

	for _, peer := range c.Cluster.Peers {
		// Skip self if it appears in peers list
		if peer.ID != c.Node.ID {
			nodes = append(nodes, ring.Node{
				ID:   peer.ID,
				Addr: peer.Addr,
			})
		}
	}

	return nodes
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
