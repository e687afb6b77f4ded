package classifier

import (
	"context"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"media-dispatcher/pkg/models"
)

// DefaultShortLinkHosts are expanded before classification
var DefaultShortLinkHosts = []string{"pin.it"}

// KindResolver derives the resource kind and target from the path segments of a matched URL.
// A non-nil failure is terminal.
type KindResolver func(segments []string, resolvedURL string) (models.ResourceKind, string, *models.Failure)

// Rule maps a set of hosts to a platform. Rules are tested in registration order.
type Rule struct {
	Name     string
	Platform models.Platform
	// Hosts match the URL host exactly or as a parent domain.
	Hosts []string
	// Resolve is optional; without it the kind is unknown and the target is the resolved URL.
	Resolve KindResolver
}

// Matches reports whether host belongs to the rule
func (r Rule) Matches(host string) bool {
	for _, h := range r.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Classifier turns message text into a classified request
type Classifier struct {
	rules      []Rule
	shortHosts []string
	expander   models.Expander
	mu         sync.RWMutex
	logger     zerolog.Logger
}

// NewClassifier creates a classifier with no rules. Use DefaultRules or Register to add them.
func NewClassifier(expander models.Expander, shortLinkHosts []string) *Classifier {
	if len(shortLinkHosts) == 0 {
		shortLinkHosts = DefaultShortLinkHosts
	}

	hosts := make([]string, 0, len(shortLinkHosts))
	for _, h := range shortLinkHosts {
		hosts = append(hosts, strings.ToLower(strings.TrimSpace(h)))
	}

	return &Classifier{
		shortHosts: hosts,
		expander:   expander,
		logger:     zerolog.New(os.Stdout).With().Timestamp().Str("component", "classifier").Logger(),
	}
}

// New creates a classifier loaded with the default rule table
func New(expander models.Expander, shortLinkHosts []string) *Classifier {
	c := NewClassifier(expander, shortLinkHosts)
	for _, rule := range DefaultRules() {
		c.Register(rule)
	}
	return c
}

// Register appends a rule to the end of the table
func (c *Classifier) Register(rule Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule)
}

// Rules returns a copy of the rule table in match order
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	return rules
}

// Classify expands short links and matches the URL against the rule table.
// Unmatched input classifies as unsupported without error; expansion and
// malformed targets return a *models.Failure.
func (c *Classifier) Classify(ctx context.Context, raw string) (models.ClassifiedRequest, error) {
	original := strings.TrimSpace(raw)
	req := models.ClassifiedRequest{
		OriginalURL: original,
		ResolvedURL: original,
		Platform:    models.PlatformUnsupported,
		Kind:        models.KindUnknown,
		Target:      original,
	}

	u, ok := parseHTTP(original)
	if !ok {
		return req, nil
	}

	if c.isShortLink(u.Hostname()) {
		resolved, err := c.expand(ctx, original)
		if err != nil {
			return req, err
		}
		req.ResolvedURL = resolved
		req.Target = resolved

		if u, ok = parseHTTP(resolved); !ok {
			return req, nil
		}
	}

	return c.match(req, u)
}

func (c *Classifier) expand(ctx context.Context, shortURL string) (string, error) {
	if c.expander == nil {
		return "", models.NewFailure(models.FailureLinkExpansion, "no expander configured for %s", shortURL)
	}

	resolved, err := c.expander.Expand(ctx, shortURL)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", shortURL).Msg("Short link expansion failed")
		return "", models.NewFailure(models.FailureLinkExpansion, "%v", err)
	}
	if resolved == "" {
		return "", models.NewFailure(models.FailureLinkExpansion, "empty expansion for %s", shortURL)
	}

	c.logger.Debug().Str("url", shortURL).Str("resolved", resolved).Msg("Expanded short link")
	return resolved, nil
}

func (c *Classifier) match(req models.ClassifiedRequest, u *url.URL) (models.ClassifiedRequest, error) {
	host := strings.ToLower(u.Hostname())
	segments := pathSegments(u.Path)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, rule := range c.rules {
		if !rule.Matches(host) {
			continue
		}

		req.Platform = rule.Platform
		if rule.Resolve == nil {
			return req, nil
		}

		kind, target, failure := rule.Resolve(segments, req.ResolvedURL)
		if failure != nil {
			return req, failure
		}
		req.Kind = kind
		req.Target = target
		return req, nil
	}

	return req, nil
}

func (c *Classifier) isShortLink(host string) bool {
	host = strings.ToLower(host)
	for _, h := range c.shortHosts {
		if host == h {
			return true
		}
	}
	return false
}

// parseHTTP accepts only absolute http(s) URLs with a host
func parseHTTP(raw string) (*url.URL, bool) {
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

func pathSegments(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
