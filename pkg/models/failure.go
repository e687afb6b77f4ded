package models

import "fmt"

// FailureKind classifies why a request did not produce an artifact
type FailureKind string

const (
	FailureQuotaExceeded       FailureKind = "quota_exceeded"
	FailureLinkExpansion       FailureKind = "link_expansion_failed"
	FailureUnsupportedPlatform FailureKind = "unsupported_platform"
	FailureMalformedTarget     FailureKind = "malformed_target"
	FailureExtractor           FailureKind = "extractor_failure"
	FailureArtifactTooLarge    FailureKind = "artifact_too_large"
	FailureArtifactMissing     FailureKind = "artifact_missing"
	FailureTimeout             FailureKind = "timeout"
)

// Failure is a typed terminal failure. It implements error.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrQuotaExceeded       = &Failure{Kind: FailureQuotaExceeded}
	ErrLinkExpansion       = &Failure{Kind: FailureLinkExpansion}
	ErrUnsupportedPlatform = &Failure{Kind: FailureUnsupportedPlatform}
	ErrMalformedTarget     = &Failure{Kind: FailureMalformedTarget}
	ErrExtractor           = &Failure{Kind: FailureExtractor}
	ErrArtifactTooLarge    = &Failure{Kind: FailureArtifactTooLarge}
	ErrArtifactMissing     = &Failure{Kind: FailureArtifactMissing}
	ErrTimeout             = &Failure{Kind: FailureTimeout}
)

// NewFailure creates a failure with a formatted detail
func NewFailure(kind FailureKind, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// Is matches any failure of the same kind
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok || f == nil || t == nil {
		return false
	}
	return t.Kind == f.Kind
}

// Reason returns a short human readable description
func (f *Failure) Reason() string {
	switch f.Kind {
	case FailureQuotaExceeded:
		return "quota exceeded"
	case FailureLinkExpansion:
		return "failed to expand short link"
	case FailureUnsupportedPlatform:
		return "unsupported"
	case FailureMalformedTarget:
		return "malformed target"
	case FailureArtifactTooLarge:
		return "too large"
	case FailureArtifactMissing:
		return "artifact missing"
	case FailureTimeout:
		return "timed out"
	case FailureExtractor:
		if f.Detail != "" {
			return f.Detail
		}
		return "extractor failure"
	default:
		return string(f.Kind)
	}
}
