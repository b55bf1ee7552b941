// Package web serves the webhook surface: Telegram update intake plus
// webhook management endpoints.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UpdateHandler consumes one Telegram update. The bot implements it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
	API() *tgbotapi.BotAPI
}

// Server is the gin app around the webhook endpoints.
type Server struct {
	bot        UpdateHandler
	webhookURL string
	log        *zap.Logger
	engine     *gin.Engine
}

func NewServer(bot UpdateHandler, webhookURL string, log *zap.Logger) *Server {
	s := &Server{bot: bot, webhookURL: webhookURL, log: log}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(zapLoggerMiddleware(log), gin.Recovery())

	r.GET("/", s.health)
	r.POST("/webhook", s.webhook)
	r.POST("/set_webhook", s.setWebhook)
	r.GET("/get_webhook_info", s.webhookInfo)
	r.POST("/delete_webhook", s.deleteWebhook)

	s.engine = r
	return s
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves HTTP until the server fails or ctx is cancelled, then
// drains in-flight requests before returning.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("webhook server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("webhook server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "anuj-bot"})
}

// webhook acknowledges Telegram synchronously and processes the update
// in the background so slow handlers never trigger retries.
func (s *Server) webhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := json.NewDecoder(c.Request.Body).Decode(&update); err != nil {
		s.log.Warn("bad webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		s.bot.HandleUpdate(ctx, update)
	}()

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) setWebhook(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		url = s.webhookURL
	}
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no webhook url configured"})
		return
	}

	wh, err := tgbotapi.NewWebhook(url + "/webhook")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.bot.API().Request(wh); err != nil {
		s.log.Error("set webhook failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.log.Info("webhook set", zap.String("url", url))
	c.JSON(http.StatusOK, gin.H{"status": "ok", "url": url + "/webhook"})
}

func (s *Server) webhookInfo(c *gin.Context) {
	info, err := s.bot.API().GetWebhookInfo()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":             info.URL,
		"pending_updates": info.PendingUpdateCount,
		"last_error":      info.LastErrorMessage,
	})
}

func (s *Server) deleteWebhook(c *gin.Context) {
	if _, err := s.bot.API().Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.log.Info("webhook deleted")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func zapLoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
