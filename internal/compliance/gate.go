// Package compliance screens outbound wellness content. The engine stays in
// wellness territory: text that drifts into medical claims is blocked until a
// practitioner reviews it, never silently shipped.
package compliance

import (
	"regexp"
	"strings"
)

// Disclaimer is required on every protocol and recommendation shown to a
// subject.
const Disclaimer = "This content is for general wellness only and is not medical advice."

// prohibited matches language that turns wellness guidance into a medical
// claim. Case-insensitive, whole-word.
var prohibited = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdiagnos(e|is|ed)\b`),
	regexp.MustCompile(`(?i)\btreat(ment|s|ing)?\b`),
	regexp.MustCompile(`(?i)\bcure(s|d|ing)?\b`),
	regexp.MustCompile(`(?i)\bprevent\b (?:disease|illness)`),
}

var softenPattern = regexp.MustCompile(`(?i)\b(treat|cure|prevent)\b`)

// Finding is the gate's verdict on one piece of content.
type Finding struct {
	Passed            bool
	MissingDisclaimer bool
	Matches           []string // the prohibited phrases found, verbatim
}

// Inspect screens text. It fails the finding when a prohibited phrase appears
// or the disclaimer is absent.
func Inspect(text string) Finding {
	f := Finding{Passed: true}
	for _, re := range prohibited {
		if m := re.FindString(text); m != "" {
			f.Matches = append(f.Matches, m)
			f.Passed = false
		}
	}
	if !strings.Contains(text, Disclaimer) {
		f.MissingDisclaimer = true
		f.Passed = false
	}
	return f
}

// Soften rewrites medical verbs into wellness language. Used by generators
// before submission, not by the gate itself: the gate only judges.
func Soften(text string) string {
	return softenPattern.ReplaceAllString(text, "may support")
}

// WithDisclaimer appends the disclaimer when missing.
func WithDisclaimer(text string) string {
	if strings.Contains(text, Disclaimer) {
		return text
	}
	if text == "" {
		return Disclaimer
	}
	return strings.TrimRight(text, "\n ") + "\n\n" + Disclaimer
}
