package server

import (
	"net/http"
	"strings"
	"time"

	"chemagent/internal/kernel"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Sessions: len(s.sessions.Sessions()),
	})
}

func (s *Server) handleExecute(c *gin.Context) {
	var req kernel.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "code is required"})
		return
	}
	if req.Timeout < 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "timeout must not be negative"})
		return
	}
	timeout := time.Duration(req.Timeout * float64(time.Second))

	res, err := s.sessions.ExecuteDetailed(c.Request.Context(), req.ConversationID, req.Code, timeout)
	if err != nil {
		s.logger.Error("Execute failed for conversation %q: %v", req.ConversationID, err)
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	if res.NewSession {
		s.logger.Info("New kernel session %s for conversation %q", res.SessionID, req.ConversationID)
	}
	c.JSON(http.StatusOK, kernel.ExecuteResponse{
		Result:           res.Output,
		NewKernelCreated: res.NewSession,
		SessionID:        res.SessionID,
	})
}

func (s *Server) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.Sessions()})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.sessions.Close(c.Request.Context(), id); err != nil {
		s.logger.Warn("Closing session %q failed: %v", id, err)
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
