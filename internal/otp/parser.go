package otp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/brandon/otp-fetch/pkg/types"
)

// ErrNoToken indicates a message matched the sender filter but carries
// no extractable OTP token. Scans treat such messages as non-candidates.
var ErrNoToken = errors.New("no otp token found in message")

// rule pairs an extraction pattern with an optional shape check on the
// captured token
type rule struct {
	re        *regexp.Regexp
	wantDigit bool
}

// Parser extracts an OTP token from a candidate message by applying a
// list of extraction rules to the subject first, then the body.
type Parser struct {
	rules []rule
}

// NewParser creates a parser with the default extraction rules: a
// "Code:"-prefixed token, then a standalone digit run of tokenLength.
// The delimiter rule requires the colon and a digit in the token, so
// prose such as "the code below" never shadows the digit-run rule.
func NewParser(tokenLength int) *Parser {
	return &Parser{
		rules: []rule{
			{re: regexp.MustCompile(`(?i)code:\s*([A-Za-z0-9-]{4,12})`), wantDigit: true},
			{re: regexp.MustCompile(fmt.Sprintf(`\b(\d{%d})\b`, tokenLength))},
		},
	}
}

// NewParserPattern creates a parser with a single custom extraction
// rule. The pattern's first capture group (or the whole match when it
// has none) is the token.
func NewParserPattern(pattern string) (*Parser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid otp pattern: %w", err)
	}
	return &Parser{rules: []rule{{re: re}}}, nil
}

// Parse extracts the OTP token from a candidate message
func (p *Parser) Parse(msg types.CandidateMessage) (string, error) {
	for _, text := range []string{msg.Subject, msg.Body} {
		if text == "" {
			continue
		}
		for _, r := range p.rules {
			token := extract(r.re, text)
			if token == "" {
				continue
			}
			if r.wantDigit && !strings.ContainsAny(token, "0123456789") {
				continue
			}
			return token, nil
		}
	}
	return "", ErrNoToken
}

func extract(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[0])
}
