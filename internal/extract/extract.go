package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
)

// MaxTextChars caps extracted text before it is handed to the AI
// capabilities; longer pages are clipped with a trailing ellipsis.
const MaxTextChars = 10000

// Text extracts the readable body text of an HTML document. Readability is
// tried first; pages it cannot parse fall back to a selector-based strip.
func Text(pageURL string, body []byte) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	if text := readabilityText(body, parsed); text != "" {
		return clip(text), nil
	}

	text, err := fallbackText(body)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("no readable content extracted")
	}
	return clip(text), nil
}

func readabilityText(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return ""
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return ""
	}

	text := CleanText(rendered.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	return text
}

// fallbackText strips boilerplate elements and prefers the main content
// container, mirroring plain article pages readability chokes on.
func fallbackText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, nav, header, footer, aside").Remove()

	content := doc.Find("main").First()
	if content.Length() == 0 {
		content = doc.Find("article").First()
	}
	if content.Length() == 0 {
		content = doc.Find("div.content").First()
	}

	var text string
	if content.Length() > 0 {
		text = content.Text()
	} else {
		text = doc.Find("body").Text()
	}
	return CleanText(text), nil
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n"))
}

// TruncateRunes clips text to maxChars runes.
func TruncateRunes(raw string, maxChars int) string {
	if maxChars <= 0 {
		return raw
	}
	runes := []rune(raw)
	if len(runes) <= maxChars {
		return raw
	}
	return string(runes[:maxChars])
}

func clip(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxTextChars {
		return text
	}
	return string(runes[:MaxTextChars]) + "..."
}
