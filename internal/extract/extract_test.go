package extract

import (
	"strings"
	"testing"
)

func TestText_PrefersMainContent(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Nakano Broadway</title></head><body>
<nav>Home | About</nav>
<main><p>Nakano Broadway is a shopping complex famous for anime goods and collectibles.</p>
<p>It opened in 1966 and houses hundreds of small shops.</p></main>
<footer>Copyright</footer>
</body></html>`

	text, err := Text("https://example.com/place/nakano-broadway/", []byte(html))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if !strings.Contains(text, "shopping complex") {
		t.Fatalf("expected main content in output, got %q", text)
	}
	if strings.Contains(text, "Home | About") {
		t.Fatalf("expected navigation to be stripped, got %q", text)
	}
}

func TestText_EmptyDocument(t *testing.T) {
	t.Parallel()

	if _, err := Text("https://example.com/x", []byte("<html><body></body></html>")); err == nil {
		t.Fatalf("expected error for empty document")
	}
}

func TestText_ClipsLongPages(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("tokyo ", 4000)
	html := "<html><body><main><p>" + long + "</p></main></body></html>"

	text, err := Text("https://example.com/place/long/", []byte(html))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len([]rune(text)) > MaxTextChars+3 {
		t.Fatalf("expected clipped text, got %d runes", len([]rune(text)))
	}
	if !strings.HasSuffix(text, "...") {
		t.Fatalf("expected ellipsis suffix on clipped text")
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	got := CleanText("  line one \r\n\r\n\t line   two  \n")
	if got != "line one\nline two" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	if got := TruncateRunes("こんにちは", 3); got != "こんに" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := TruncateRunes("short", 100); got != "short" {
		t.Fatalf("expected unchanged text, got %q", got)
	}
}
