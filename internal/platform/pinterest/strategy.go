package pinterest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

var _ models.Strategy = &Strategy{}

// DefaultResolverURL is the page that turns a pin URL into a direct media link
const DefaultResolverURL = "https://www.expertsphp.com/download.php"

// mediaLinkSelector locates the media link in the resolver response
const mediaLinkSelector = "table.table-condensed tbody td a"

// Strategy resolves the media behind a pin through a third party page and downloads it
type Strategy struct {
	resolverURL string
	client      *utils.HTTPClient
	logger      zerolog.Logger
}

// NewStrategy creates a Pinterest strategy
func NewStrategy(resolverURL string, client *utils.HTTPClient) *Strategy {
	if resolverURL == "" {
		resolverURL = DefaultResolverURL
	}

	return &Strategy{
		resolverURL: resolverURL,
		client:      client,
		logger:      zerolog.New(os.Stdout).With().Timestamp().Str("component", "pinterest").Logger(),
	}
}

// ResolveMediaURL asks the resolver page for the direct media URL of pinURL
func (s *Strategy) ResolveMediaURL(ctx context.Context, pinURL string) (string, error) {
	resp, err := s.client.PostForm(ctx, s.resolverURL, url.Values{"url": {pinURL}}, nil)
	if err != nil {
		return "", fmt.Errorf("resolver request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolver returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse resolver response: %w", err)
	}

	href, ok := doc.Find(mediaLinkSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", fmt.Errorf("no media link found for %s", pinURL)
	}

	return href, nil
}

// Fetch implements models.Strategy
func (s *Strategy) Fetch(ctx context.Context, target, outputDir string) (string, error) {
	mediaURL, err := s.ResolveMediaURL(ctx, target)
	if err != nil {
		return "", fmt.Errorf("failed to get download URL from Pinterest: %w", err)
	}

	name := "pinterest_image.jpg"
	if strings.Contains(mediaURL, ".mp4") {
		name = "pinterest_video.mp4"
	}
	filePath := filepath.Join(outputDir, name)

	written, err := s.client.DownloadFile(ctx, mediaURL, filePath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to download pinterest media: %w", err)
	}

	s.logger.Info().
		Str("pin", target).
		Str("file", filePath).
		Str("size", utils.FormatBytes(written)).
		Msg("Pinterest media downloaded")

	return filePath, nil
}
