package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"AmbientFM/core/player"
	"AmbientFM/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 播放器的 HTTP 接口与状态推送
type Server struct {
	player   *player.Player
	hub      *Hub
	router   *mux.Router
	upgrader websocket.Upgrader
	// 重新初始化的超时时间
	initTimeout time.Duration
}

// New 创建服务器并注册路由
func New(p *player.Player) *Server {
	s := &Server{
		player: p,
		hub:    NewHub(),
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		initTimeout: 2 * time.Minute,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// 添加 CORS 中间件
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/lanes/{slug}/toggle", s.handleToggle).Methods(http.MethodPost)
	api.HandleFunc("/lanes/{slug}/volume", s.handleVolume).Methods(http.MethodPut)
	api.HandleFunc("/shuffle", s.handleShuffle).Methods(http.MethodPost)
	api.HandleFunc("/retry", s.handleRetry).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler 返回根路由
func (s *Server) Handler() http.Handler { return s.router }

// Hub 返回状态推送中心
func (s *Server) Hub() *Hub { return s.hub }

// pushStatus 把播放器的每次状态变化推送给所有客户端
func (s *Server) pushStatus(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			data, err := encodeStatus(s.player.Status())
			if err != nil {
				logger.Error("序列化状态失败", logger.ErrorField(err))
				continue
			}
			s.hub.Broadcast(data)
		}
	}
}

// Start 启动 Hub 和状态推送，ctx 结束时停止
func (s *Server) Start(ctx context.Context) {
	changes, cancel := s.player.Subscribe()
	go s.hub.Run()
	go func() {
		defer cancel()
		s.pushStatus(ctx, changes)
		s.hub.Stop()
	}()
}

// ListenAndServe 监听 addr，ctx 结束时优雅关闭
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务已启动", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("正在关闭 HTTP 服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
