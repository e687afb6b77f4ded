package expander

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

var _ models.Expander = &HTTPExpander{}

// HTTPExpander resolves short links by following HTTP redirects
type HTTPExpander struct {
	client *utils.HTTPClient
	logger zerolog.Logger
}

// NewHTTPExpander creates an expander on the given client
func NewHTTPExpander(client *utils.HTTPClient) *HTTPExpander {
	return &HTTPExpander{
		client: client,
		logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "expander").Logger(),
	}
}

// Expand implements models.Expander. A link that answers without redirecting is
// an expansion failure rather than an expansion to itself.
func (e *HTTPExpander) Expand(ctx context.Context, shortURL string) (string, error) {
	resolved, err := e.client.FinalURL(ctx, shortURL)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", shortURL, err)
	}
	// A short link that lands on itself expanded to nothing classifiable
	if resolved == shortURL {
		return "", fmt.Errorf("no redirect for %s", shortURL)
	}

	e.logger.Debug().Str("short", shortURL).Str("resolved", resolved).Msg("Short link expanded")
	return resolved, nil
}
