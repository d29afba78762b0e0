package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

const masked = "***"

type piiMiddleware struct {
	next     ports.RunStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks argument values whose
// key matches any of the patterns before the record is persisted. The
// in-memory record held by the runner is never touched.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.RunStore) ports.RunStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, rec domain.Record) error {
	if len(rec.Args) > 0 {
		rec.Args = maskArgs(rec.Args, m.patterns)
	}
	return m.next.Save(ctx, rec)
}

func (m *piiMiddleware) Load(ctx context.Context, runID string) (domain.Record, error) {
	return m.next.Load(ctx, runID)
}

func (m *piiMiddleware) List(ctx context.Context, session string) ([]domain.Record, error) {
	return m.next.List(ctx, session)
}

func (m *piiMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

// maskArgs returns a masked copy, recursing into nested maps so the
// original stays untouched.
func maskArgs(args domain.Args, patterns []*regexp.Regexp) domain.Args {
	out := make(domain.Args, len(args))
	for k, v := range args {
		if matchesAny(k, patterns) {
			out[k] = masked
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			out[k] = map[string]any(maskArgs(sub, patterns))
			continue
		}
		out[k] = v
	}
	return out
}

func matchesAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
