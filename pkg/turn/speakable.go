package turn

import (
	"regexp"
	"strings"
)

// Speakable converts a markdown-flavored reply into text suitable for
// synthesis: markup is stripped and fractions and units are expanded
// into words a listener can follow.
func Speakable(text string) string {
	out := codeBlockRe.ReplaceAllString(text, " code omitted ")
	out = inlineCodeRe.ReplaceAllString(out, "$1")
	out = linkRe.ReplaceAllString(out, "$1")
	out = boldRe.ReplaceAllString(out, "$1")
	out = italicRe.ReplaceAllString(out, "$1")
	out = headingRe.ReplaceAllString(out, "")
	out = bulletRe.ReplaceAllString(out, "")
	out = tableRowRe.ReplaceAllString(out, " ")

	out = expandFractions(out)
	out = expandUnits(out)

	return strings.TrimSpace(wsRe.ReplaceAllString(out, " "))
}

var (
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	boldRe       = regexp.MustCompile(`\*{1,3}([^*]+)\*{1,3}`)
	italicRe     = regexp.MustCompile(`\b_{1,3}([^_]+)_{1,3}\b`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-*+]\s+|^\s*\d+\.\s+`)
	tableRowRe   = regexp.MustCompile(`(?m)^\|.*\|$`)
	wsRe         = regexp.MustCompile(`\s+`)
)

// fractionWords covers fractions small enough to say naturally.
var fractionWords = map[string]string{
	"1/2": "one half",
	"1/3": "one third",
	"2/3": "two thirds",
	"1/4": "one quarter",
	"3/4": "three quarters",
	"1/5": "one fifth",
	"1/8": "one eighth",
}

var fractionRe = regexp.MustCompile(`\b(\d+)/(\d+)\b`)

func expandFractions(text string) string {
	return fractionRe.ReplaceAllStringFunc(text, func(m string) string {
		if word, ok := fractionWords[m]; ok {
			return word
		}
		parts := strings.SplitN(m, "/", 2)
		return parts[0] + " over " + parts[1]
	})
}

// unitReplacements expand terse units into spoken forms.
var unitReplacements = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(\d)\s*°C\b`), "$1 degrees Celsius"},
	{regexp.MustCompile(`(\d)\s*°F\b`), "$1 degrees Fahrenheit"},
	{regexp.MustCompile(`(\d)\s*km/h\b`), "$1 kilometers per hour"},
	{regexp.MustCompile(`(\d)\s*mph\b`), "$1 miles per hour"},
	{regexp.MustCompile(`(\d)\s*km\b`), "$1 kilometers"},
	{regexp.MustCompile(`(\d)\s*kg\b`), "$1 kilograms"},
	{regexp.MustCompile(`(\d)\s*%`), "$1 percent"},
	{regexp.MustCompile(`\$(\d[\d,.]*)`), "$1 dollars"},
}

func expandUnits(text string) string {
	for _, u := range unitReplacements {
		text = u.re.ReplaceAllString(text, u.repl)
	}
	return text
}
