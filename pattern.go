package relay

import (
	"errors"

	"github.com/grafana/regexp"
)

// maxPatternLength bounds the size of a compilable pattern. Route and filter
// patterns may come from untrusted input, and compilation cost grows with
// pattern size.
const maxPatternLength = 512

// Pattern is a compiled route matcher. A pattern string is matched literally
// except for the '*' token, which matches exactly one path segment (one or
// more characters, none of which may be a '/'). Matching is always anchored
// against the whole candidate string.
//
// The same pattern syntax is used for routes, actions, and data filters:
//
//	/users/*     matches /users/42, not /users/42/x or /users
//	UPDATE       matches only UPDATE
//	ok*          matches ok-confirmed, not fail
type Pattern struct {
	str    string
	regExp *regexp.Regexp
}

// NewPattern compiles a pattern string. It returns an error if the pattern
// exceeds the maximum allowed length or cannot be compiled.
func NewPattern(patternStr string) (*Pattern, error) {
	if len(patternStr) > maxPatternLength {
		return nil, errors.New("pattern exceeds maximum length")
	}

	regExpStr := "^"
	for _, currentRune := range patternStr {
		if currentRune == '*' {
			regExpStr += "[^/]+"
			continue
		}
		regExpStr += regexp.QuoteMeta(string(currentRune))
	}
	regExpStr += "$"

	regExp, err := regexp.Compile(regExpStr)
	if err != nil {
		return nil, err
	}

	return &Pattern{
		str:    patternStr,
		regExp: regExp,
	}, nil
}

// MustPattern is like NewPattern but panics if the pattern is invalid. It is
// intended for patterns known at registration time.
func MustPattern(patternStr string) *Pattern {
	pattern, err := NewPattern(patternStr)
	if err != nil {
		panic("invalid pattern \"" + patternStr + "\": " + err.Error())
	}
	return pattern
}

// Match reports whether the candidate string matches the pattern. It is a
// pure function with no side effects.
func (p *Pattern) Match(candidate string) bool {
	return p.regExp.MatchString(candidate)
}

// String returns the string the pattern was compiled from.
func (p *Pattern) String() string {
	return p.str
}
