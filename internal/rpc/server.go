// Package rpc serves the kv.KeyValueStore gRPC service.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"lumenkv/pkg/tracing"
)

const (
	defaultGRPCAddr        = "0.0.0.0:50051"
	defaultShutdownTimeout = time.Second * 5
)

// RequestObserver records per-request metrics. *metrics.Metrics implements it.
type RequestObserver interface {
	ObserveRequest(transport, method, code string, d time.Duration)
}

type Options struct {
	Logger          *slog.Logger
	Metrics         RequestObserver
	Tracer          *tracing.Tracer
	ShutdownTimeout time.Duration
}

// Server represents the gRPC server with storage
type Server struct {
	grpcServer *grpc.Server
	opts       Options
	log        *slog.Logger
	listener   net.Listener
	addr       string
}

// NewServer creates a new server instance
func NewServer(store Store, addr string, opts Options) *Server {
	if addr == "" {
		addr = defaultGRPCAddr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Noop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		opts: opts,
		log:  opts.Logger.With("component", "grpc"),
		addr: addr,
	}
	s.grpcServer = grpc.NewServer(
		grpc.ForceServerCodec(protoCodec{}),
		grpc.ChainUnaryInterceptor(s.unaryInterceptor),
	)
	RegisterKeyValueStoreServer(s.grpcServer, &kvService{store: store})
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start gRPC server: %w", err)
	}
	s.Serve(ln)
	return nil
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(ln net.Listener) {
	s.listener = ln
	go func() {
		if err := s.grpcServer.Serve(ln); err != nil {
			s.log.Error("gRPC server error", "error", err)
		}
	}()
	s.log.Info("gRPC server started", "addr", ln.Addr().String())
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop drains in-flight calls, forcing the stop after the shutdown timeout.
func (s *Server) Stop() error {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.opts.ShutdownTimeout):
		s.log.Warn("gRPC graceful stop timed out, forcing")
		s.grpcServer.Stop()
		<-done
	}
	s.log.Info("gRPC server stopped")
	return nil
}

// unaryInterceptor tags each call with a request ID, traces and logs it and
// turns panics into Internal errors.
func (s *Server) unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	start := time.Now()

	requestID := incomingRequestID(ctx)
	if err := grpc.SetHeader(ctx, metadata.Pairs(requestIDKey, requestID)); err != nil {
		s.log.Debug("failed to set response header", "error", err)
	}

	ctx, span := s.opts.Tracer.StartSpan(ctx, info.FullMethod,
		attribute.String("rpc.system", "grpc"),
		attribute.String("request_id", requestID),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in gRPC handler", "method", info.FullMethod, "request_id", requestID, "panic", r)
			err = status.Errorf(codes.Internal, "internal error")
		}

		code := status.Code(err)
		elapsed := time.Since(start)
		if s.opts.Metrics != nil {
			s.opts.Metrics.ObserveRequest("grpc", info.FullMethod, code.String(), elapsed)
		}
		span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))

		switch code {
		case codes.OK, codes.InvalidArgument:
			s.log.Debug("request served", "method", info.FullMethod, "request_id", requestID, "code", code.String(), "duration", elapsed)
		default:
			tracing.RecordError(ctx, err)
			s.log.Error("request failed", "method", info.FullMethod, "request_id", requestID, "code", code.String(), "duration", elapsed, "error", err)
		}
	}()

	return handler(ctx, req)
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(requestIDKey); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.NewString()
}
