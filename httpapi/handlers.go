package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/martinemde/taskrouter/agentloop"
)

type taskRequest struct {
	Task string `json:"task" binding:"required,max=20000"`
}

type classifyResponse struct {
	Classification agentloop.Classification  `json:"classification"`
	Policy         agentloop.ExecutionPolicy `json:"policy"`
	Complexity     float64                   `json:"complexity"`
	Direct         bool                      `json:"direct"`
}

type toolResponse struct {
	agentloop.ToolDescriptor
	Stats agentloop.ToolStats `json:"stats"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tools": s.orch.Registry().Count()})
}

func (s *Server) handleRunTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, describeBindError(err))
		return
	}

	ctx := c.Request.Context()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	res, err := s.orch.Run(ctx, req.Task)
	switch {
	case errors.Is(err, agentloop.ErrEmptyTask):
		writeError(c, http.StatusBadRequest, "task is required")
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, res)
	case errors.Is(err, context.Canceled):
		// The client is gone; nothing useful can be written.
		c.Status(499)
	case err != nil:
		writeError(c, http.StatusInternalServerError, err.Error())
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (s *Server) handleClassify(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, describeBindError(err))
		return
	}
	classifier := s.orch.Classifier()
	cls := classifier.Classify(req.Task)
	c.JSON(http.StatusOK, classifyResponse{
		Classification: cls,
		Policy:         classifier.PolicyFor(cls.Type),
		Complexity:     classifier.Complexity(req.Task),
		Direct:         classifier.ShouldUseDirectResponse(cls),
	})
}

func (s *Server) handleListTools(c *gin.Context) {
	registry := s.orch.Registry()
	stats := registry.Stats()
	ret := make([]toolResponse, 0, registry.Count())
	for _, d := range registry.List() {
		ret = append(ret, toolResponse{ToolDescriptor: d, Stats: stats[d.Name]})
	}
	c.JSON(http.StatusOK, ret)
}

func (s *Server) handleListSessions(c *gin.Context) {
	if s.sessions == nil {
		writeError(c, http.StatusNotFound, "session storage is disabled")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	list, err := s.sessions.ListSessions(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetSession(c *gin.Context) {
	if s.sessions == nil {
		writeError(c, http.StatusNotFound, "session storage is disabled")
		return
	}
	id := c.Param("id")
	snap, err := s.sessions.Load(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		writeError(c, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
		return
	}
	c.JSON(http.StatusOK, snap)
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

// describeBindError turns binding failures into a short client message.
func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body: " + err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
