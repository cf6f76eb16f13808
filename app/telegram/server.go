package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nuclight.org/feedback-tg-bot/pkg/logger"
)

const (
	updatesBuffer   = 100
	shutdownTimeout = 5 * time.Second
)

// Server serves /healthz, /metrics and, when WebhookPath is set, receives
// webhook updates and passes them to Updates.
type Server struct {
	Log         logger.Logger
	Address     string
	WebhookPath string
	Webhook     WebhookParser
	Gatherer    prometheus.Gatherer

	updates chan tgbotapi.Update
	srv     *http.Server
}

// Updates returns the channel of updates received by the webhook.
func (s *Server) Updates() tgbotapi.UpdatesChannel {
	s.init()
	return s.updates
}

func (s *Server) init() {
	if s.updates == nil {
		s.updates = make(chan tgbotapi.Update, updatesBuffer)
	}
}

func (s *Server) Handler() http.Handler {
	s.init()

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	if s.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	if s.WebhookPath != "" {
		router.POST(s.WebhookPath, s.handleWebhook)
	}

	return router
}

func (s *Server) handleWebhook(c *gin.Context) {
	update, err := s.Webhook.HandleUpdate(c.Request)
	if err != nil {
		s.Log.Warn("parsing webhook update", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	select {
	case s.updates <- *update:
		c.Status(http.StatusOK)
	case <-c.Request.Context().Done():
		// telegram redelivers updates answered with an error
		c.Status(http.StatusServiceUnavailable)
	}
}

// Start listens on Address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Address, err)
	}

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := s.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.Error("http server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.Log.Error("shutting down http server", "error", err)
		}
	}()

	s.Log.Info("http server started", "address", ln.Addr().String(), "webhook_path", s.WebhookPath)

	return nil
}

type WebhookParser interface {
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}
