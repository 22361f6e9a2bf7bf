package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ctxRequestID = "request_id"
	ctxSessionID = "session_id"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
}

func NewServer(port string, readTimeout, writeTimeout time.Duration) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestTracing())
	router.Use(ginZerologLogger())

	return &Server{
		router: router,
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
}

func (s *Server) SetupRoutes(handlers *Handlers) {
	s.router.GET("/health", handlers.HealthCheck)
	s.router.GET("/ready", handlers.ReadinessCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/quotes", handlers.GetQuotes)
		v1.POST("/screen", handlers.Screen)
		v1.POST("/alerts/subscribe", handlers.SubscribeAlerts)
		v1.GET("/alerts/history", handlers.GetAlertHistory)
	}
}

// Run starts listening and blocks until ctx is cancelled, then drains
// in-flight requests with a 5s grace period.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("api server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("api server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("api server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

// requestTracing adopts the client's X-Request-ID (minting one when
// absent) and echoes both trace headers back, so every response's
// metadata can be correlated across services.
func requestTracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(ctxRequestID, reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)
		if sid := c.GetHeader("X-Session-ID"); sid != "" {
			c.Set(ctxSessionID, sid)
			c.Writer.Header().Set("X-Session-ID", sid)
		}
		c.Next()
	}
}

func ginZerologLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("request_id", c.GetString(ctxRequestID)).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
