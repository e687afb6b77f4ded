package server

import (
	"fmt"
	"net/http"

	"media-dispatcher/pkg/models"
)

const (
	replyExpansionFailed = "Failed to expand the short URL."
	replyUnsupported     = "Unsupported platform. Please provide a valid link."
	replyGeneric         = "An error occurred while processing your request. Please try again later."
)

// Limits are the user-facing numbers quoted in replies
type Limits struct {
	QuotaLimit  int
	MaxFileSize int64
}

// LimitsFromConfig reads the reply limits from configuration
func LimitsFromConfig(cfg *models.Config) Limits {
	return Limits{
		QuotaLimit:  cfg.Quota.Limit,
		MaxFileSize: cfg.Download.MaxFileSizeBytes,
	}
}

// Welcome returns the greeting sent when a user starts the bot
func Welcome(limits Limits) string {
	return fmt.Sprintf("Hello! I'm a bot for downloading media from Instagram, YouTube, TikTok, Facebook, and Pinterest.\n"+
		"Just send me a link to a post, video, or Stories.\n"+
		"⚠️ Maximum file size for download: %d MB.", limits.MaxFileSize/(1024*1024))
}

// Reply returns the text sent to the user for a non-success outcome
func Reply(outcome models.Outcome, limits Limits) string {
	if outcome.Failure == nil {
		if outcome.State == models.StateUnsupported {
			return replyUnsupported
		}
		return ""
	}

	switch outcome.Failure.Kind {
	case models.FailureQuotaExceeded:
		return fmt.Sprintf("You have exceeded the limit of %d downloads per minute. Please wait.", limits.QuotaLimit)
	case models.FailureLinkExpansion:
		return replyExpansionFailed
	case models.FailureUnsupportedPlatform, models.FailureMalformedTarget:
		return replyUnsupported
	case models.FailureArtifactTooLarge:
		return fmt.Sprintf("File size exceeds the limit of %d MB.", limits.MaxFileSize/(1024*1024))
	default:
		return replyGeneric
	}
}

// StatusCode maps an outcome to the HTTP status of the messages endpoint
func StatusCode(outcome models.Outcome) int {
	if outcome.Succeeded() {
		return http.StatusOK
	}
	if outcome.Failure == nil {
		return http.StatusInternalServerError
	}

	switch outcome.Failure.Kind {
	case models.FailureQuotaExceeded:
		return http.StatusTooManyRequests
	case models.FailureUnsupportedPlatform, models.FailureMalformedTarget, models.FailureLinkExpansion:
		return http.StatusUnprocessableEntity
	case models.FailureArtifactTooLarge:
		return http.StatusRequestEntityTooLarge
	case models.FailureTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
