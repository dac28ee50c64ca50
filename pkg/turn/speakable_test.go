package turn

import (
	"strings"
	"testing"
)

func TestSpeakableStripsMarkup(t *testing.T) {
	in := "# Answer\n\nUse **bold** and [a link](https://example.com) here.\n\n```go\nfmt.Println(1)\n```\n\n- item one\n- item two"
	out := Speakable(in)

	for _, banned := range []string{"#", "**", "](", "```", "- item"} {
		if strings.Contains(out, banned) {
			t.Errorf("markup %q survived: %q", banned, out)
		}
	}
	for _, want := range []string{"Answer", "bold", "a link", "item one"} {
		if !strings.Contains(out, want) {
			t.Errorf("content %q lost: %q", want, out)
		}
	}
}

func TestSpeakableExpandsFractions(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"add 1/2 cup of flour", "add one half cup of flour"},
		{"about 3/4 done", "about three quarters done"},
		{"odds of 5/7", "odds of 5 over 7"},
	}
	for _, tt := range tests {
		if got := Speakable(tt.in); got != tt.want {
			t.Errorf("Speakable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpeakableExpandsUnits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"it is 20°C outside", "it is 20 degrees Celsius outside"},
		{"wind at 15 km/h", "wind at 15 kilometers per hour"},
		{"battery at 80%", "battery at 80 percent"},
		{"costs $5 today", "costs 5 dollars today"},
	}
	for _, tt := range tests {
		if got := Speakable(tt.in); got != tt.want {
			t.Errorf("Speakable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
