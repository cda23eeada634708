package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/ceremony/internal/remote"
)

const deviceIDContextKey = "deviceID"

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	engine := gin.New()
	engine.Use(requestLogger(s.logger), gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	api.POST("/auth/device", s.handleAuth)

	authed := api.Group("")
	authed.Use(s.requireDevice())
	authed.POST("/stats", s.handleSubmit)
	authed.GET("/ranking", s.handleRanking)

	return engine
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) requireDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			writeError(c, unauthorized("missing authorization header"))
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(c, unauthorized("invalid authorization format"))
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			writeError(c, unauthorized("invalid authorization format"))
			return
		}

		deviceID, apiErr := s.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}
		c.Set(deviceIDContextKey, deviceID)
		c.Next()
	}
}

func deviceID(c *gin.Context) string {
	return c.GetString(deviceIDContextKey)
}

func (s *Server) handleAuth(c *gin.Context) {
	var req remote.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(remote.CodeInvalidRequest, "invalid request body"))
		return
	}

	sess, apiErr := s.AuthenticateDevice(c.Request.Context(), req.DeviceID, req.Secret)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleSubmit(c *gin.Context) {
	var snap remote.StatSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		writeError(c, badRequest(remote.CodeInvalidRequest, "invalid request body"))
		return
	}

	r, apiErr := s.SubmitStats(c.Request.Context(), deviceID(c), snap)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleRanking(c *gin.Context) {
	r, apiErr := s.Ranking(c.Request.Context(), deviceID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, r)
}
