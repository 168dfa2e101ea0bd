package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/config"
)

// Server interface defines the common behavior for all servers
type Server interface {
	Run() error
}

type BaseServer struct {
	config *config.Config
	logger *logrus.Logger
	router *gin.Engine
}

func init() {
	// Set Gin mode to release by default
	gin.SetMode(gin.ReleaseMode)
	// Disable Gin's default logging globally
	gin.DefaultWriter = io.Discard
}

func NewBaseServer(config *config.Config, logger *logrus.Logger) *BaseServer {
	router := gin.New()
	router.Use(gin.Recovery())

	return &BaseServer{
		config: config,
		logger: logger,
		router: router,
	}
}

// GetRouter exposes the engine for tests.
func (s *BaseServer) GetRouter() *gin.Engine {
	return s.router
}

func healthResponse() gin.H {
	return gin.H{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"version": config.Version,
	}
}

// setupHealthCheck adds a health check endpoint to the server
func (s *BaseServer) setupHealthCheck() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse())
	})
}

// runServer is a helper method to start the server
func (s *BaseServer) runServer(addr string) error {
	return s.router.Run(addr)
}
