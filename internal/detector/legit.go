package detector

import (
	"strings"

	"golang.org/x/net/html"
)

// minLegitimateLength is the smallest body treated as a real page.
const minLegitimateLength = 1000

// LooksLegitimate reports whether body looks like a complete HTML page:
// long enough, with both an <html> and a <body> element.
func LooksLegitimate(body string) bool {
	if len(body) < minLegitimateLength {
		return false
	}

	var sawHTML, sawBody bool
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	for !(sawHTML && sawBody) {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "html":
				sawHTML = true
			case "body":
				sawBody = true
			}
		}
	}
	return true
}
