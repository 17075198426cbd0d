// Package httpapi serves the kitchen over HTTP: a small REST surface, a
// websocket feed of board updates and the Prometheus endpoint.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

// Kitchen is the part of controller.Controller the HTTP API drives.
type Kitchen interface {
	AddBot() types.Snapshot
	AddOrder(types.OrderType) (types.Snapshot, error)
	WithdrawBot(types.BotID) (types.Snapshot, bool)
	Snapshot() types.Snapshot
	Board() types.Board
	GetStatus() controller.Status
	Subscribe() (<-chan types.Board, func())
}

// Server routes HTTP requests to a Kitchen.
type Server struct {
	router  *gin.Engine
	kitchen Kitchen
	log     *slog.Logger
}

// NewServer builds the router. metrics may be nil, in which case /metrics
// is not served.
func NewServer(k Kitchen, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:  gin.New(),
		kitchen: k,
		log:     logger,
	}
	s.router.Use(gin.Recovery(), s.logRequests)
	s.setupRoutes(metrics)
	return s
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/board", s.handleBoard)
	s.router.GET("/snapshot", s.handleSnapshot)
	s.router.POST("/bots", s.handleAddBot)
	s.router.DELETE("/bots/:id", s.handleWithdrawBot)
	s.router.POST("/orders", s.handleAddOrder)
	s.router.GET("/ws", s.handleWebSocket)
	if metrics != nil {
		s.router.GET("/metrics", gin.WrapH(metrics))
	}
}

// Router returns the underlying gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(c *gin.Context) {
	c.Next()
	s.log.Debug("http request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status())
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.kitchen.GetStatus())
}

func (s *Server) handleBoard(c *gin.Context) {
	c.JSON(http.StatusOK, s.kitchen.Board())
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.kitchen.Snapshot())
}

func (s *Server) handleAddBot(c *gin.Context) {
	snap := s.kitchen.AddBot()
	c.JSON(http.StatusCreated, snap.Bots[len(snap.Bots)-1])
}

func (s *Server) handleWithdrawBot(c *gin.Context) {
	id := types.BotID(c.Param("id"))
	snap, changed := s.kitchen.WithdrawBot(id)
	if !changed {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot " + string(id) + " not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// OrderRequest is the body of POST /orders.
type OrderRequest struct {
	Type string `json:"type" binding:"required"`
}

func (s *Server) handleAddOrder(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := types.ParseOrderType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.kitchen.AddOrder(t)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, types.ErrInvalidOrderType) {
			code = http.StatusBadRequest
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, snap.Orders[len(snap.Orders)-1])
}
