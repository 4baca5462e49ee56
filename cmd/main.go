package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recall-backend/internal/card"
	"recall-backend/internal/config"
	"recall-backend/internal/handler"
	"recall-backend/internal/provider"
	"recall-backend/internal/session"
	"recall-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	completions := newProvider(cfg)

	registry := session.NewMemoryRegistry(completions, cfg.Session)
	registry.StartSweeper()
	defer registry.StopSweeper()

	cards, err := card.NewProvider(card.SeedCards())
	if err != nil {
		logger.Fatalf("Failed to build card provider: %v", err)
	}

	chatHandler := handler.NewChatHandler(registry, cards)

	router := setupRouter(cfg, chatHandler)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	if err := server.Close(); err != nil {
		logger.Errorf("server close failed: %v", err)
	}
	logger.Info("server stopped")
}

func newProvider(cfg *config.Config) provider.Provider {
	if cfg.Provider.Type == "stub" {
		logger.Warnf("using stub completion provider; replies are canned")
		return &provider.StubProvider{Deltas: []string{"This is a stubbed reply ", "from the development provider."}}
	}
	return provider.NewOpenAI(cfg.OpenAI)
}

func setupRouter(cfg *config.Config, chatHandler *handler.ChatHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api")
	{
		chat := api.Group("/chat")
		{
			chat.POST("/stream", chatHandler.StreamChat)
			chat.DELETE("/session", chatHandler.DeleteSession)
			chat.GET("/session/:session_id", chatHandler.GetSession)
		}

		cards := api.Group("/cards")
		{
			cards.GET("/next", chatHandler.NextCard)
			cards.POST("/rate", chatHandler.RateCard)
		}

		api.POST("/decks/import", chatHandler.ImportDeck)
	}

	return router
}
