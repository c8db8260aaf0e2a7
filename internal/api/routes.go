package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/swap-resolver/internal/auction"
	"github.com/rawblock/swap-resolver/internal/events"
	"github.com/rawblock/swap-resolver/internal/risk"
	"github.com/rawblock/swap-resolver/internal/swap"
)

// APIHandler serves the resolver's optional operator HTTP surface:
// read-only status plus the one safety-critical control (emergency
// stop) the resolver needs to expose locally.
type APIHandler struct {
	executor    *swap.Executor
	participant *auction.Participant
	riskMgr     *risk.Manager
	hub         *events.Hub
}

// Config bounds the operator HTTP surface's own behavior: the bearer
// token guarding protected routes and the per-IP rate limit applied
// to them. Built from the resolver's Config/Secrets by
// config.Config.ToAPIConfig, never read from the environment directly
// inside this package.
type Config struct {
	AuthToken          string
	RateLimitPerMinute int
	RateLimitBurst     int
}

// SetupRouter wires the operator endpoints behind bearer-token auth
// and per-IP rate limiting, both parameterised by cfg.
func SetupRouter(cfg Config, executor *swap.Executor, participant *auction.Participant, riskMgr *risk.Manager, hub *events.Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{executor: executor, participant: participant, riskMgr: riskMgr, hub: hub}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		if hub != nil {
			pub.GET("/stream", hub.Subscribe)
		}
	}

	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware(cfg.AuthToken))
	auth.Use(NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst).Middleware())
	{
		auth.GET("/status", handler.handleStatus)
		auth.GET("/executions", handler.handleExecutions)
		auth.GET("/participations", handler.handleParticipations)
		auth.POST("/emergency-stop", handler.handleEmergencyStop)
		auth.POST("/emergency-stop/reset", handler.handleEmergencyStopReset)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "operational"})
}

func (h *APIHandler) handleStatus(c *gin.Context) {
	status := gin.H{
		"activeExecutions":   0,
		"activeParticipations": 0,
		"emergencyStopped":   false,
	}
	if h.executor != nil {
		status["activeExecutions"] = len(h.executor.ActiveExecutions())
	}
	if h.participant != nil {
		status["activeParticipations"] = h.participant.ActiveParticipationCount()
	}
	if h.riskMgr != nil {
		status["emergencyStopped"] = h.riskMgr.IsEmergencyStopped()
		status["errorRate"] = h.riskMgr.ErrorRate()
	}
	c.JSON(http.StatusOK, status)
}

func (h *APIHandler) handleExecutions(c *gin.Context) {
	if h.executor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "executor not configured"})
		return
	}
	c.JSON(http.StatusOK, h.executor.ActiveExecutions())
}

func (h *APIHandler) handleParticipations(c *gin.Context) {
	if h.participant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "participant not configured"})
		return
	}
	c.JSON(http.StatusOK, h.participant.Participations())
}

// handleEmergencyStop halts new order participation and risk
// acceptance immediately. Existing in-flight executions are not
// cancelled — they run to completion or failure on their own.
func (h *APIHandler) handleEmergencyStop(c *gin.Context) {
	if h.riskMgr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk manager not configured"})
		return
	}
	h.riskMgr.SetEmergencyStopped(true)
	c.JSON(http.StatusOK, gin.H{"emergencyStopped": true})
}

func (h *APIHandler) handleEmergencyStopReset(c *gin.Context) {
	if h.riskMgr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "risk manager not configured"})
		return
	}
	h.riskMgr.SetEmergencyStopped(false)
	c.JSON(http.StatusOK, gin.H{"emergencyStopped": false})
}
