package crawler

import (
	"fmt"
	"regexp"
)

// Matcher decides whether a URL may be fetched based on include and
// exclude regular expressions. Expressions use search semantics: they may
// match anywhere in the URL unless anchored.
type Matcher struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// CompilePatterns compiles regular expressions, reporting the first one
// that does not compile.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid URL pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// NewMatcher compiles the include and exclude patterns.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	inc, err := CompilePatterns(include)
	if err != nil {
		return nil, err
	}
	exc, err := CompilePatterns(exclude)
	if err != nil {
		return nil, err
	}
	return &Matcher{include: inc, exclude: exc}, nil
}

// Allow reports whether rawURL passes the patterns. With include patterns
// configured the URL must match at least one of them; it must match none
// of the exclude patterns.
func (m *Matcher) Allow(rawURL string) bool {
	if m == nil {
		return true
	}
	if len(m.include) > 0 && !matchesAny(m.include, rawURL) {
		return false
	}
	return !matchesAny(m.exclude, rawURL)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
