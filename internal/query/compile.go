package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

// MatchKind identifies which fast path a compiled Plan uses.
type MatchKind int

const (
	// MatchExact compiles a pattern with no wildcard metacharacters: an
	// exact, case-folded (unless CaseSensitive) name comparison.
	MatchExact MatchKind = iota
	// MatchGlob compiles '*'/'?'/'[...]'/'{...}' patterns via globToRegexp.
	MatchGlob
	// MatchRegex compiles an explicit regular expression supplied by the
	// caller.
	MatchRegex
)

const (
	defaultMaxResults = 1000
	maxMaxResults     = 10_000
	defaultDeadline   = 5 * time.Second
)

// Request is the semantic shape of an incoming search request, independent
// of the wire encoding the IPC layer uses (SPEC_FULL.md §4.6).
type Request struct {
	Pattern       string
	Regex         bool // Pattern is framed as an explicit regex rather than a name/glob
	Scope         string
	Drive         string
	MaxResults    int
	MinSize       *uint64
	MaxSize       *uint64
	IncludeHidden bool
	CaseSensitive bool
	Deadline      time.Duration
}

// Plan is a compiled Request, ready to execute against one or more volume
// indexes via Engine.Run.
type Plan struct {
	Kind MatchKind

	// exact is the literal name to compare against when Kind == MatchExact.
	exact         string
	caseSensitive bool

	re *regexp.Regexp // set for MatchGlob and MatchRegex

	// extTag is the lower-cased literal extension the pattern ends with
	// (e.g. "js" for "*.js"), or "" if the pattern has no such literal
	// suffix. When set, Engine prefers IterByExtension over a full scan.
	extTag string

	scopePrefix   string
	drive         string
	minSize       *uint64
	maxSize       *uint64
	includeHidden bool
	maxResults    int
	deadline      time.Duration
}

// Compile validates and compiles a Request into a Plan. Exact-name
// patterns are detected first (fastest path); patterns containing glob
// metacharacters compile through globToRegexp; everything else requiring
// Regex framing compiles through the standard regex engine, size-bounded.
func Compile(req Request) (Plan, error) {
	if req.Pattern == "" {
		return Plan{}, fmt.Errorf("%w: empty pattern", apperrors.ErrInvalidPattern)
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxMaxResults {
		return Plan{}, fmt.Errorf("%w: max_results %d exceeds %d", apperrors.ErrTooManyResults, maxResults, maxMaxResults)
	}

	deadline := req.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}

	var minSize, maxSize *uint64
	if req.MinSize != nil && req.MaxSize != nil && *req.MinSize > *req.MaxSize {
		return Plan{}, fmt.Errorf("%w: min_size %d exceeds max_size %d", apperrors.ErrInvalidSize, *req.MinSize, *req.MaxSize)
	}
	minSize, maxSize = req.MinSize, req.MaxSize

	plan := Plan{
		scopePrefix:   normalizeScope(req.Scope),
		drive:         req.Drive,
		minSize:       minSize,
		maxSize:       maxSize,
		includeHidden: req.IncludeHidden,
		maxResults:    maxResults,
		deadline:      deadline,
		caseSensitive: req.CaseSensitive,
	}

	switch {
	case req.Regex:
		re, err := compileRegex(req.Pattern, !req.CaseSensitive)
		if err != nil {
			return Plan{}, err
		}
		plan.Kind = MatchRegex
		plan.re = re

	case !hasGlobMeta(req.Pattern) && !strings.ContainsAny(req.Pattern, `\/`):
		plan.Kind = MatchExact
		plan.exact = req.Pattern
		if !req.CaseSensitive {
			plan.exact = strings.ToLower(plan.exact)
		}
		plan.extTag = literalExtSuffix(plan.exact)

	default:
		re, err := globToRegexp(req.Pattern, !req.CaseSensitive)
		if err != nil {
			return Plan{}, err
		}
		plan.Kind = MatchGlob
		plan.re = re
		plan.extTag = literalExtSuffix(req.Pattern)
	}

	return plan, nil
}

// literalExtSuffix returns the lower-cased extension a pattern like "*.js"
// or "report.pdf" names literally, or "" if the pattern's trailing segment
// after the last dot itself contains glob metacharacters (e.g. "*.?sv").
func literalExtSuffix(pattern string) string {
	dot := strings.LastIndexByte(pattern, '.')
	if dot < 0 || dot == len(pattern)-1 {
		return ""
	}
	suffix := pattern[dot+1:]
	if hasGlobMeta(suffix) {
		return ""
	}
	return strings.ToLower(suffix)
}

func normalizeScope(scope string) string {
	if scope == "" {
		return ""
	}
	return strings.ToLower(strings.TrimRight(scope, `\/`))
}
