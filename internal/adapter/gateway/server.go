// Package gateway exposes the agent catalog over HTTP and a WebSocket RPC channel.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"agentgate/internal/domain"
	"agentgate/internal/infra/middleware"
)

// Catalog resolves agents by name.
type Catalog interface {
	Get(name string) (*domain.AgentDescriptor, error)
	Names() []string
}

// Invoker runs one invocation to a terminal result.
type Invoker interface {
	Run(ctx context.Context, req domain.InvocationRequest) domain.InvocationResult
}

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (any, error)

// Options configures a Server.
type Options struct {
	Addr           string
	Auth           Authenticator
	RateLimit      middleware.RateLimitConfig
	AllowedOrigins []string
	Metrics        http.Handler // served at /metrics when set
	Logger         *slog.Logger
}

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

// Server is the HTTP + WebSocket gateway in front of the runner.
type Server struct {
	catalog    Catalog
	invoker    Invoker
	opts       Options
	auth       Authenticator
	logger     *slog.Logger
	clients    sync.Map // connID (uint64) -> *clientConn
	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler
	nextID     atomic.Uint64

	mu        sync.Mutex
	httpSrv   *http.Server
	boundAddr string
	ready     chan struct{}
}

// NewServer creates a gateway server with the agents.list and agents.invoke
// RPC methods registered.
func NewServer(catalog Catalog, invoker Invoker, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Auth == nil {
		opts.Auth = OpenAuth{}
	}
	s := &Server{
		catalog:  catalog,
		invoker:  invoker,
		opts:     opts,
		auth:     opts.Auth,
		logger:   opts.Logger.With("component", "gateway"),
		handlers: make(map[string]RPCHandler),
		ready:    make(chan struct{}),
	}
	s.RegisterHandler(MethodAgentsList, s.rpcListAgents)
	s.RegisterHandler(MethodAgentsInvoke, s.rpcInvoke)
	return s
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// Handler builds the route tree. Background work started for it (rate limit
// bucket sweeping) stops when ctx is cancelled.
func (s *Server) Handler(ctx context.Context) http.Handler {
	limit := s.opts.RateLimit
	if limit.KeyFunc == nil {
		limit.KeyFunc = func(r *http.Request) string {
			if c, ok := ClientFrom(r.Context()); ok {
				return "client:" + c.Name
			}
			return ""
		}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(middleware.RateLimitWithConfig(ctx, limit))

		if s.opts.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
		}
		r.Get("/v1/agents", s.handleListAgents)
		r.Get("/v1/agents/{name}", s.handleGetAgent)
		r.Post("/v1/agents/{name}/invocations", s.handleInvoke)
		r.Get("/ws", s.handleUpgrade)
	})
	return r
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("gateway started", "addr", s.BoundAddr())

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Ready is closed once Start has bound its listener.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// BoundAddr returns the actual address the server bound to. Only valid after Ready.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// Stop closes every WebSocket client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := s.auth.Authenticate(requestToken(r))
		if err != nil {
			s.logger.Debug("gateway auth rejected", "remote", r.RemoteAddr, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, domain.ErrorCodeOf(err), "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withClient(r.Context(), info)))
	})
}

func (s *Server) originPatterns() []string {
	patterns := []string{
		"localhost",
		"localhost:*",
		"127.0.0.1",
		"127.0.0.1:*",
		"[::1]",
		"[::1]:*",
	}
	return append(patterns, s.opts.AllowedOrigins...)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientInfo, _ := ClientFrom(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   clientInfo,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)

	s.logger.Info("gateway client connected", "conn_id", connID, "client", clientInfo.Name)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}

		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.sendResponse(cc, req.ID, nil, domain.NewDomainError("gateway.dispatch", domain.ErrMethodNotFound, req.Method))
		return
	}

	result, err := handler(ctx, cc.info, req.Payload)
	if err != nil {
		s.sendResponse(cc, req.ID, nil, err)
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.sendResponse(cc, req.ID, nil, fmt.Errorf("encode %s result: %w", req.Method, err))
		return
	}
	s.sendResponse(cc, req.ID, payload, nil)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: result,
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	select {
	case cc.sendCh <- resp:
	case <-cc.done:
	default:
		s.logger.Warn("gateway: dropped RPC response for slow client", "frame_id", id)
	}
}
