package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/omnibridge/omnibridge-service/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// RunServer runs the gRPC health server and the HTTP gateway serving transfer status
func RunServer(cfg Config, storage transferStorage) error {
	ctx := context.Background()

	if len(cfg.GRPCPort) == 0 {
		return fmt.Errorf("invalid TCP port for gRPC server: '%s'", cfg.GRPCPort)
	}

	if len(cfg.HTTPPort) == 0 {
		return fmt.Errorf("invalid TCP port for HTTP gateway: '%s'", cfg.HTTPPort)
	}

	go func() {
		if err := runRestServer(ctx, cfg, storage); err != nil && err != http.ErrServerClosed {
			log.Errorf("rest server: %v", err)
		}
	}()

	go func() {
		if err := runGRPCServer(ctx, storage, cfg.GRPCPort); err != nil {
			log.Errorf("grpc server: %v", err)
		}
	}()

	return nil
}

// healthChecker reports SERVING while the transfer storage answers
type healthChecker struct {
	storage transferStorage
}

func newHealthChecker(storage transferStorage) *healthChecker {
	return &healthChecker{storage: storage}
}

func (s *healthChecker) status(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if _, err := s.storage.GetPendingDeposits(ctx, 1); err != nil {
		log.Warnf("health check: %v", err)
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// Check returns the current status of the server for unary gRPC health requests
func (s *healthChecker) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{Status: s.status(ctx)}, nil
}

// Watch sends the current status once for stream gRPC health requests
func (s *healthChecker) Watch(_ *grpc_health_v1.HealthCheckRequest, server grpc_health_v1.Health_WatchServer) error {
	return server.Send(&grpc_health_v1.HealthCheckResponse{Status: s.status(server.Context())})
}

func newGRPCServer(storage transferStorage) *grpc.Server {
	server := grpc.NewServer(grpc.UnaryInterceptor(NewRequestLogInterceptor()))
	grpc_health_v1.RegisterHealthServer(server, newHealthChecker(storage))
	return server
}

func runGRPCServer(ctx context.Context, storage transferStorage, port string) error {
	listen, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	server := newGRPCServer(storage)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		for range c {
			server.GracefulStop()
			<-ctx.Done()
		}
	}()

	log.Info("gRPC Server is serving at ", port)
	return server.Serve(listen)
}

func preflightHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Headers", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// allowCORS allows Cross Origin Resource Sharing from any origin.
// The API is read-only.
func allowCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				preflightHandler(w, r)
				return
			}
		}
		h.ServeHTTP(w, r)
	})
}

// newGateway builds the HTTP handler. /healthz asks the gRPC health service over conn.
func newGateway(cfg Config, conn grpc.ClientConnInterface, storage transferStorage) (http.Handler, error) {
	muxHealthOpt := runtime.WithHealthzEndpoint(grpc_health_v1.NewHealthClient(conn))
	muxJSONOpt := runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.JSONBuiltin{})
	mux := runtime.NewServeMux(muxJSONOpt, muxHealthOpt)
	if err := newTransferService(cfg, storage).register(mux); err != nil {
		return nil, err
	}
	return allowCORS(mux), nil
}

func runRestServer(ctx context.Context, cfg Config, storage transferStorage) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	endpoint := "localhost:" + cfg.GRPCPort
	conn, err := grpc.Dial(endpoint, opts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	handler, err := newGateway(cfg, conn, storage)
	if err != nil {
		return err
	}

	srv := &http.Server{
		ReadTimeout: 1 * time.Second, //nolint:gomnd
		Addr:        ":" + cfg.HTTPPort,
		Handler:     handler,
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second) //nolint:gomnd
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Restful Server is serving at ", cfg.HTTPPort)
	return srv.ListenAndServe()
}
