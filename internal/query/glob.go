// Package query compiles search requests (SPEC_FULL.md §4.6) into a Plan
// and executes them against an Index. Pattern compilation is grounded on
// the reference codebase's glob-to-regexp compiler, adapted from
// path-with-directory-pruning semantics to bare-filename matching: this
// service's patterns never contain a path separator, so there is no
// directory-glob decomposition step to carry over.
package query

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

// maxCompiledPatternSize bounds the regexp/syntax program size a compiled
// pattern may produce, so a pathological glob or regex can't blow up
// memory or match time. Chosen generously above any realistic filename
// pattern; SPEC_FULL.md §4.6 calls this "a fixed bound."
const maxCompiledPatternSize = 4096

// globToRegexp translates a glob pattern into an anchored regular
// expression string, matching a bare file name (no path separators).
// Supported syntax: '*' (any run of characters), '?' (single character),
// '[...]' character classes (passed through to the regex engine
// verbatim; a '[' inside a class is rejected, so POSIX classes such as
// [[:alpha:]] are not supported), '{a,b,c}' brace
// alternation, and backslash escaping.
func globToRegexp(glob string, ignoreCase bool) (*regexp.Regexp, error) {
	var out strings.Builder
	if ignoreCase {
		out.WriteString("(?i)")
	}
	out.WriteByte('^')

	runStars := 0
	inClass := false
	braceDepth := 0

	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if c != '*' && runStars > 0 {
			if runStars > 2 {
				return nil, fmt.Errorf("%w: too many stars in pattern %q", apperrors.ErrInvalidPattern, glob)
			}
			if runStars == 2 {
				out.WriteString(".*")
			} else {
				out.WriteString("[^\\\\]*")
			}
			runStars = 0
		}

		switch {
		case c == '\\':
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("%w: trailing backslash in pattern %q", apperrors.ErrInvalidPattern, glob)
			}
			out.WriteByte('\\')
			out.WriteRune(runes[i+1])
			i++
		case c == '*':
			runStars++
		case c == '?':
			out.WriteString("[^\\\\]")
		case c == '[':
			if inClass {
				return nil, fmt.Errorf("%w: can't nest '[' in pattern %q", apperrors.ErrInvalidPattern, glob)
			}
			inClass = true
			out.WriteByte('[')
		case c == ']':
			if !inClass {
				return nil, fmt.Errorf("%w: mismatched ']' in pattern %q", apperrors.ErrInvalidPattern, glob)
			}
			inClass = false
			out.WriteByte(']')
		case inClass:
			out.WriteRune(c)
		case c == '{':
			braceDepth++
			if braceDepth > 1 {
				return nil, fmt.Errorf("%w: can't nest '{' in pattern %q", apperrors.ErrInvalidPattern, glob)
			}
			out.WriteByte('(')
		case c == '}':
			braceDepth--
			if braceDepth < 0 {
				return nil, fmt.Errorf("%w: mismatched '{' and '}' in pattern %q", apperrors.ErrInvalidPattern, glob)
			}
			out.WriteByte(')')
		case c == ',' && braceDepth > 0:
			out.WriteByte('|')
		case strings.ContainsRune(`.+()|^$`, c):
			out.WriteByte('\\')
			out.WriteRune(c)
		default:
			out.WriteRune(c)
		}
	}

	if inClass {
		return nil, fmt.Errorf("%w: mismatched '[' and ']' in pattern %q", apperrors.ErrInvalidPattern, glob)
	}
	if braceDepth > 0 {
		return nil, fmt.Errorf("%w: mismatched '{' and '}' in pattern %q", apperrors.ErrInvalidPattern, glob)
	}
	if runStars > 0 {
		if runStars > 2 {
			return nil, fmt.Errorf("%w: too many stars in pattern %q", apperrors.ErrInvalidPattern, glob)
		}
		if runStars == 2 {
			out.WriteString(".*")
		} else {
			out.WriteString("[^\\\\]*")
		}
	}

	out.WriteByte('$')
	return compileBounded(out.String(), glob)
}

// compileRegex validates and compiles a user-supplied regex pattern,
// rejecting anything whose program size exceeds the bound or that uses
// backreferences (unsupported by Go's RE2 engine in the first place, so
// this mainly catches oversized or catastrophic patterns early with the
// service's own error taxonomy).
func compileRegex(pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	if ignoreCase && !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	return compileBounded(pattern, pattern)
}

// compileBounded compiles expr and rejects it if the resulting program
// exceeds maxCompiledPatternSize instructions, per SPEC_FULL.md §4.6's
// "never expanded into a regex larger than a fixed bound."
func compileBounded(expr, original string) (*regexp.Regexp, error) {
	parsed, err := syntax.Parse(expr, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("%w: bad glob pattern %q: %v", apperrors.ErrInvalidPattern, original, err)
	}
	prog, err := syntax.Compile(parsed.Simplify())
	if err != nil {
		return nil, fmt.Errorf("%w: bad glob pattern %q: %v", apperrors.ErrInvalidPattern, original, err)
	}
	if len(prog.Inst) > maxCompiledPatternSize {
		return nil, fmt.Errorf("%w: pattern %q compiles to a program too large", apperrors.ErrInvalidPattern, original)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad glob pattern %q: %v", apperrors.ErrInvalidPattern, original, err)
	}
	return re, nil
}

// hasGlobMeta reports whether pattern uses any glob metacharacter.
func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[{`)
}
