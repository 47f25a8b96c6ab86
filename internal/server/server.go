package server

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"cachetier/internal/dlock"
)

// Server hosts the Cache and Coord services of one process.
type Server struct {
	nodeID     string
	grpcServer *grpc.Server
	logger     logrus.FieldLogger
}

// Config selects what a Server exposes. A nil Cache or Coord leaves that
// service unregistered.
type Config struct {
	NodeID string
	Cache  *CacheServer
	Coord  dlock.Client
	Logger logrus.FieldLogger
}

// New registers the configured services on a fresh grpc.Server.
func New(cfg Config, opts ...grpc.ServerOption) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("node", cfg.NodeID)

	gs := grpc.NewServer(opts...)
	if cfg.Cache != nil {
		gs.RegisterService(&CacheServiceDesc, cfg.Cache)
	}
	if cfg.Coord != nil {
		gs.RegisterService(&CoordServiceDesc, NewCoordServer(cfg.Coord, logger))
	}

	// Enable gRPC reflection for grpcurl
	reflection.Register(gs)

	return &Server{nodeID: cfg.NodeID, grpcServer: gs, logger: logger}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.WithField("addr", lis.Addr().String()).Info("serving")
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.logger.Info("stopping")
	s.grpcServer.GracefulStop()
}
