package server

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"media-dispatcher/internal/dispatch"
	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

// Health check handler
func (s *Server) healthCheck(c *gin.Context) {
	response := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}
	if s.deps.Monitor != nil {
		response["runtime"] = s.deps.Monitor.HealthCheck()
	}
	c.JSON(http.StatusOK, response)
}

// handleMessage runs one message through the pipeline and delivers the artifact
func (s *Server) handleMessage(c *gin.Context) {
	var req struct {
		UserID int64  `json:"user_id" binding:"required"`
		Text   string `json:"text" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := s.deps.Dispatcher.Handle(c.Request.Context(), models.Message{
		UserID: models.UserID(req.UserID),
		Text:   req.Text,
	})

	if !outcome.Succeeded() {
		response := gin.H{
			"request_id": outcome.RequestID,
			"state":      outcome.State,
			"platform":   outcome.Platform,
			"message":    Reply(outcome, s.limits),
		}
		if outcome.Failure != nil {
			response["failure"] = outcome.Failure
		}
		c.JSON(StatusCode(outcome), response)
		return
	}

	s.deliver(c, outcome)
}

// deliver streams the artifact and releases it once the stream completed.
// Artifacts of a failed delivery stay on disk.
func (s *Server) deliver(c *gin.Context, outcome models.Outcome) {
	if err := checkArtifacts(outcome); err != nil {
		s.logger.Error().Err(err).Str("request_id", outcome.RequestID).Msg("Artifact unavailable for delivery")
		c.JSON(http.StatusInternalServerError, gin.H{
			"request_id": outcome.RequestID,
			"state":      models.StateFailed,
			"platform":   outcome.Platform,
			"message":    replyGeneric,
		})
		return
	}

	c.Header("X-Request-ID", outcome.RequestID)
	c.Header("X-Media-Kind", string(outcome.MediaKind))
	c.Header("X-Platform", string(outcome.Platform))

	var err error
	if outcome.MediaKind == models.MediaKindBatch {
		c.Header("Content-Type", "application/zip")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outcome.RequestID+".zip"))
		c.Status(http.StatusOK)
		err = writeZip(c.Writer, outcome.Items)
	} else {
		c.FileAttachment(outcome.ArtifactPath, utils.SanitizeFilename(filepath.Base(outcome.ArtifactPath)))
		if status := c.Writer.Status(); status != http.StatusOK {
			err = fmt.Errorf("file served with status %d", status)
		}
	}
	if err == nil {
		err = c.Request.Context().Err()
	}
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", outcome.RequestID).Msg("Delivery failed, artifact left on disk")
		return
	}

	err = dispatch.Release(outcome)
	if s.deps.Monitor != nil {
		s.deps.Monitor.RecordCleanup(err)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", outcome.RequestID).Msg("Failed to release artifact")
	}
}

// checkArtifacts verifies every file of the outcome is still readable
func checkArtifacts(outcome models.Outcome) error {
	paths := []string{outcome.ArtifactPath}
	if outcome.MediaKind == models.MediaKindBatch {
		paths = outcome.Items
	}
	if len(paths) == 0 {
		return fmt.Errorf("outcome lists no files")
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%s is not a regular file", path)
		}
	}
	return nil
}

// writeZip writes items into a zip archive named by their base names. On
// error the archive is left without its central directory.
func writeZip(w io.Writer, items []string) error {
	zw := zip.NewWriter(w)
	for _, item := range items {
		if err := addToZip(zw, item); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addToZip(zw *zip.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	entry, err := zw.Create(utils.SanitizeFilename(filepath.Base(path)))
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, file)
	return err
}

// registerUser stores a user on first contact
func (s *Server) registerUser(c *gin.Context) {
	var req struct {
		UserID    int64  `json:"user_id" binding:"required"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		UserID:    models.UserID(req.UserID),
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		JoinedAt:  time.Now(),
	}

	created, err := s.deps.Storage.RegisterUser(user)
	if err != nil {
		s.logger.Error().Err(err).Int64("user", req.UserID).Msg("Failed to register user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.logger.Info().Int64("user", req.UserID).Str("username", req.Username).Msg("User registered")
	}
	c.JSON(status, gin.H{"created": created, "user_id": req.UserID, "message": Welcome(s.limits)})
}

// Get user handler
func (s *Server) getUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	user, err := s.deps.Storage.GetUser(models.UserID(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// List users handler
func (s *Server) listUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	users, err := s.deps.Storage.ListUsers(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

// Get stats handler
func (s *Server) getStats(c *gin.Context) {
	stats, err := s.deps.Storage.GetStats(time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// List request log handler
func (s *Server) listRequests(c *gin.Context) {
	filter := models.RequestFilter{}

	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		user := models.UserID(id)
		filter.UserID = &user
	}

	if v := c.Query("platform"); v != "" {
		platform := models.Platform(v)
		filter.Platform = &platform
	}

	if v := c.Query("state"); v != "" {
		state := models.OutcomeState(v)
		filter.State = &state
	}

	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := s.deps.Storage.ListRequestLogs(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": entries,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// List platforms handler
func (s *Server) listPlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": s.deps.Platforms.GetPlatformInfo()})
}
