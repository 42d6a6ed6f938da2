package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"auction-lifecycle-service/internal/config"
	"auction-lifecycle-service/internal/ports/inbound"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Server struct {
	handler    *WsHandler
	httpServer *http.Server
	config     *config.Config
	logger     zerolog.Logger
}

type ServerParams struct {
	Config         *config.Config
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Broadcaster    outbound.Broadcaster
	// Gatherer backs /metrics; nil serves the default registry
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

func NewServer(params ServerParams) *Server {
	handler := NewHandler(WsHandlerParams{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  params.Config.WebSocket.ReadBufferSize,
			WriteBufferSize: params.Config.WebSocket.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		AuctionService: params.AuctionService,
		BidService:     params.BidService,
		Broadcaster:    params.Broadcaster,
		Logger:         params.Logger,
	})

	return &Server{
		handler: handler,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%s", params.Config.Server.Port),
			Handler:      NewRouter(handler, params),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Minute,
		},
		config: params.Config,
		logger: params.Logger.With().Str("component", "http_server").Logger(),
	}
}

// NewRouter wires the websocket endpoint, the REST API, health and metrics
func NewRouter(handler *WsHandler, params ServerParams) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", handler.HandleWebSocket)
	mux.HandleFunc("GET /health", handleHealth)

	metricsHandler := promhttp.Handler()
	if params.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{})
	}
	mux.Handle("GET /metrics", metricsHandler)

	NewAPI(APIParams{
		AuctionService: params.AuctionService,
		BidService:     params.BidService,
		Logger:         params.Logger,
	}).Register(mux)

	return mux
}

// Start serves HTTP until Stop is called
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Server.Port).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Int("open_clients", s.handler.GetConnectedClients()).Msg("HTTP server stopped")
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok", "service": "auction-lifecycle"}`))
}
