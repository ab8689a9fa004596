package triage

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlHintRe   = regexp.MustCompile(`(?is)<\s*(html|body|div|p|br|table|span)[\s>/]`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// ExtractText returns the plain text of a mail body. HTML bodies are reduced
// to their visible text with script and style content dropped; plain bodies
// pass through with whitespace squeezed.
func ExtractText(body string) string {
	if !htmlHintRe.MatchString(body) {
		return squeeze(body)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return squeeze(body)
	}
	doc.Find("script, style, head").Remove()

	// Block elements become line breaks so sentences do not run together.
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4").AppendHtml("\n")

	return squeeze(doc.Text())
}

func squeeze(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out := strings.Join(lines, "\n")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
