package classifier

import (
	"media-dispatcher/pkg/models"
)

// DefaultRules returns the built-in rule table in match order
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "instagram",
			Platform: models.PlatformInstagram,
			Hosts:    []string{"instagram.com", "instagr.am"},
			Resolve:  resolveInstagram,
		},
		{
			Name:     "youtube",
			Platform: models.PlatformYouTube,
			Hosts:    []string{"youtube.com", "youtu.be"},
		},
		{
			Name:     "tiktok",
			Platform: models.PlatformTikTok,
			Hosts:    []string{"tiktok.com"},
		},
		{
			Name:     "facebook",
			Platform: models.PlatformFacebook,
			Hosts:    []string{"facebook.com", "fb.watch"},
		},
		{
			Name:     "pinterest",
			Platform: models.PlatformPinterest,
			Hosts:    []string{"pinterest.com"},
		},
	}
}

// resolveInstagram maps Instagram path segments to a resource kind.
// Highlight links live under /stories/highlights/<id>, so highlights is matched
// first; matching stories first would take "highlights" as the username.
func resolveInstagram(segments []string, resolvedURL string) (models.ResourceKind, string, *models.Failure) {
	for _, marker := range []models.ResourceKind{models.KindHighlights, models.KindStories} {
		if i := indexOf(segments, string(marker)); i >= 0 {
			if i+1 >= len(segments) {
				return marker, "", models.NewFailure(models.FailureMalformedTarget, "missing %s target in %s", marker, resolvedURL)
			}
			return marker, segments[i+1], nil
		}
	}

	for _, s := range segments {
		switch s {
		case "reel", "reels":
			return models.KindReel, resolvedURL, nil
		case "p", "tv":
			return models.KindPost, resolvedURL, nil
		}
	}

	return models.KindUnknown, resolvedURL, nil
}

func indexOf(segments []string, s string) int {
	for i, seg := range segments {
		if seg == s {
			return i
		}
	}
	return -1
}
