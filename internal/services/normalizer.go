package services

import (
	"regexp"
	"strings"
)

const (
	narrationSeparator = ", "
	slashWord          = " atau "
	fillerLeadIn       = "Tentu,"
)

var (
	markupChars       = regexp.MustCompile(`[*#@$%]`)
	newlines          = regexp.MustCompile(`\r\n|\n`)
	repeatedSeparator = regexp.MustCompile(`,(?:\s*,)+\s*`)
	edgeSeparators    = regexp.MustCompile(`^\s*(?:,\s*)+|(?:\s*,)+\s*$`)
)

// normalizeSteps run in order; later steps rely on the output of earlier ones.
var normalizeSteps = []func(string) string{
	func(s string) string { return markupChars.ReplaceAllString(s, "") },
	func(s string) string { return newlines.ReplaceAllString(s, narrationSeparator) },
	func(s string) string { return strings.ReplaceAll(s, "/", slashWord) },
	func(s string) string { return repeatedSeparator.ReplaceAllString(s, narrationSeparator) },
	func(s string) string { return edgeSeparators.ReplaceAllString(s, "") },
	stripFiller,
}

// NormalizeNarration turns raw model output into text that reads as continuous
// speech.
func NormalizeNarration(raw string) string {
	text := raw
	for _, step := range normalizeSteps {
		text = step(text)
	}
	return text
}

func stripFiller(s string) string {
	if !strings.HasPrefix(s, fillerLeadIn) {
		return s
	}
	return strings.TrimSpace(strings.TrimPrefix(s, fillerLeadIn))
}
