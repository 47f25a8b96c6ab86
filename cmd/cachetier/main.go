// Command cachetier runs one cachetier process: a fixed cluster of cache
// nodes behind a consistent hash ring, each fronted by a stampede guard,
// served over gRPC.
//
// Usage:
//
//	cachetier [flags]         serve
//	cachetier [flags] demo    run the lock and guard scenarios and exit
//
// Flags override the YAML file given by --config, which overrides the
// CACHETIER_* environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"cachetier/internal/app"
	"cachetier/internal/config"
)

// logFatal is a variable so tests can intercept fatal errors.
var logFatal = logrus.Fatalf

type flags struct {
	configPath string
	nodeID     string
	listen     string
	nodes      string
	replicas   int
	lock       string
	lockDir    string
}

func parseFlags(args []string) (flags, []string, error) {
	var f flags
	fs := flag.NewFlagSet("cachetier", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&f.nodeID, "node-id", "", "node identity")
	fs.StringVar(&f.listen, "listen", "", "gRPC listen address")
	fs.StringVar(&f.nodes, "nodes", "", "cluster peers as id=addr,id=addr")
	fs.IntVar(&f.replicas, "replicas", 0, "virtual points per node")
	fs.StringVar(&f.lock, "lock", "", "lock backend: local, file or remote")
	fs.StringVar(&f.lockDir, "lock-dir", "", "directory of the file lock backend")
	if err := fs.Parse(args); err != nil {
		return flags{}, nil, err
	}
	return f, fs.Args(), nil
}

// loadConfig applies flags over the file and environment.
func loadConfig(f flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if f.nodeID != "" {
		cfg.Node.ID = f.nodeID
	}
	if f.listen != "" {
		cfg.Node.Listen = f.listen
	}
	if f.nodes != "" {
		peers, err := config.ParsePeers(f.nodes)
		if err != nil {
			return config.Config{}, fmt.Errorf("--nodes: %w", err)
		}
		cfg.Cluster.Peers = peers
	}
	if f.replicas != 0 {
		cfg.Cluster.Replicas = f.replicas
	}
	if f.lock != "" {
		cfg.Lock.Backend = f.lock
	}
	if f.lockDir != "" {
		cfg.Lock.Dir = f.lockDir
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	f, rest, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	if len(rest) > 0 && rest[0] == "demo" {
		return runDemo(ctx, logger)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	lis, err := net.Listen("tcp", cfg.Node.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Node.Listen, err)
	}
	logger.WithFields(logrus.Fields{
		"node":     cfg.Node.ID,
		"nodes":    len(a.Cluster.Nodes()),
		"replicas": cfg.Cluster.Replicas,
		"lock":     cfg.Lock.Backend,
	}).Info("cachetier starting")

	return a.Run(ctx, lis)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		logFatal("cachetier: %v", err)
	}
}
