package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"landreg/internal/merger"
	"landreg/internal/pipeline"
	"landreg/internal/registry"
	"landreg/internal/store"
)

// StatusResponse body of GET /api/status
type StatusResponse struct {
	Status  string     `json:"status"`
	Running bool       `json:"running"`
	LastRun *store.Run `json:"lastRun,omitempty"`
}

// GetStatus GET /api/status
func (s *Server) GetStatus(c *gin.Context) {
	resp := StatusResponse{Status: "ok"}
	if s.running.TryLock() {
		s.running.Unlock()
	} else {
		resp.Running = true
	}

	if s.store != nil {
		last, err := s.store.LastRun()
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to read last run")
		}
		resp.LastRun = last
	}
	c.JSON(http.StatusOK, resp)
}

// Lookup GET /api/lookup?postcode=&door=
func (s *Server) Lookup(c *gin.Context) {
	postcode := strings.TrimSpace(c.Query("postcode"))
	door := strings.TrimSpace(c.Query("door"))
	if postcode == "" || door == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "postcode and door are required"})
		return
	}

	results, err := s.coord.Lookup(c.Request.Context(), postcode, door)
	if err != nil {
		var lookupErr *registry.LookupError
		status := http.StatusInternalServerError
		if errors.As(err, &lookupErr) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"postcode": registry.NormalizePostcode(postcode),
		"door":     door,
		"results":  results,
	}
	if len(results) > 0 {
		resp["latest"] = results[0]
		resp["address"] = registry.FormatAddress(results[0])
	}
	c.JSON(http.StatusOK, resp)
}

// Match POST /api/match (add ?stream=true for server-sent progress events)
func (s *Server) Match(c *gin.Context) {
	if err := s.tryLock(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	defer s.running.Unlock()

	if stream, _ := strconv.ParseBool(c.Query("stream")); stream {
		s.streamMatch(c)
		return
	}

	summary, err := s.coord.Match(c.Request.Context(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) streamMatch(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	_, _ = s.coord.Match(c.Request.Context(), func(evt pipeline.ProgressEvent) {
		data, err := json.Marshal(evt)
		if err != nil {
			return
		}
		// SSE: data: {json}\n\n
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		flusher.Flush()
	})
}

// Merge POST /api/merge
func (s *Server) Merge(c *gin.Context) {
	if err := s.tryLock(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	defer s.running.Unlock()

	summary, err := s.coord.Merge(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, merger.ErrSourceMissing) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListRuns GET /api/runs?limit=
func (s *Server) ListRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"items": []*store.Run{}})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs})
}

// GetRun GET /api/runs/:id, including the matcher rows of match runs
func (s *Server) GetRun(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history disabled"})
		return
	}

	run, err := s.store.GetRun(c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"run": run}
	if run.Kind == store.RunKindMatch {
		matches, err := s.store.ListMatches(run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["matches"] = matches
	}
	c.JSON(http.StatusOK, resp)
}
