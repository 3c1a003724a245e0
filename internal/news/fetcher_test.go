package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/cropid/internal/security"
)

// openValidator はテスト用にすべてのURLを許可するSSRFValidator。
// httptestのループバックアドレスへ接続できるようにする。
type openValidator struct {
	validateErr error
}

var _ SSRFValidator = (*openValidator)(nil)

func (v *openValidator) ValidateURL(string) error { return v.validateErr }

func (v *openValidator) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>CropAI Announcements</title>
  <item>
    <title>Monsoon advisory</title>
    <link>https://news.example.com/monsoon</link>
    <description><![CDATA[<p>Heavy rain expected.</p><script>alert(1)</script><p>Protect <strong>seedlings</strong>.</p>]]></description>
    <pubDate>Mon, 10 Aug 2026 09:00:00 +0000</pubDate>
  </item>
  <item>
    <title>New crop models</title>
    <link>https://news.example.com/models</link>
    <description><![CDATA[<p>Improved accuracy for rice and wheat.</p>]]></description>
    <pubDate>Wed, 12 Aug 2026 09:00:00 +0000</pubDate>
  </item>
</channel>
</rss>`

func newTestFetcher(t *testing.T, feedURL string) *Fetcher {
	t.Helper()
	return NewFetcher(Config{
		FeedURL:  feedURL,
		Timeout:  time.Second,
		MaxItems: 10,
	}, &openValidator{}, security.NewContentSanitizer(), nil, nil)
}

func TestFetch_ParsesAndSanitizesFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, sampleRSS)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server.URL)
	announcements, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(announcements) != 2 {
		t.Fatalf("got %d announcements, want 2", len(announcements))
	}

	// 公開日時の降順
	if announcements[0].Title != "New crop models" {
		t.Errorf("first title = %q, want newest first", announcements[0].Title)
	}

	monsoon := announcements[1]
	if strings.Contains(monsoon.Summary, "script") {
		t.Errorf("summary must be sanitized: %q", monsoon.Summary)
	}
	if !strings.Contains(monsoon.PlainText, "Protect seedlings.") {
		t.Errorf("plain text = %q", monsoon.PlainText)
	}
	if strings.Contains(monsoon.PlainText, "<") {
		t.Errorf("plain text must carry no markup: %q", monsoon.PlainText)
	}
}

func TestFetch_NoFeedConfigured_ReturnsNil(t *testing.T) {
	fetcher := newTestFetcher(t, "")
	announcements, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if announcements != nil {
		t.Errorf("expected nil announcements, got %v", announcements)
	}
}

func TestFetch_RejectedURL_ReturnsError(t *testing.T) {
	fetcher := NewFetcher(Config{FeedURL: "http://10.0.0.1/feed"}, &openValidator{
		validateErr: fmt.Errorf("blocked IP address"),
	}, security.NewContentSanitizer(), nil, nil)

	if _, err := fetcher.Fetch(context.Background()); err == nil {
		t.Error("expected error for rejected feed URL")
	}
}

func TestFetch_HTTPFailure_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server.URL)
	if _, err := fetcher.Fetch(context.Background()); err == nil {
		t.Error("expected error for HTTP 503")
	}
}

func TestFetch_MalformedFeed_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server.URL)
	if _, err := fetcher.Fetch(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}

func TestFetch_MaxItems_TruncatesList(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, `<item><title>item %d</title><pubDate>Mon, %02d Aug 2026 09:00:00 +0000</pubDate></item>`, i, i+1)
	}
	b.WriteString(`</channel></rss>`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, b.String())
	}))
	defer server.Close()

	fetcher := NewFetcher(Config{
		FeedURL:  server.URL,
		MaxItems: 2,
	}, &openValidator{}, security.NewContentSanitizer(), nil, nil)

	announcements, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(announcements) != 2 {
		t.Errorf("got %d announcements, want 2", len(announcements))
	}
}

func TestHTMLToText_CollapsesMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello", "hello"},
		{"paragraphs", "<p>one</p><p>two</p>", "one\ntwo"},
		{"inline markup", "<p>use <strong>backup</strong> codes</p>", "use backup codes"},
		{"list items", "<ul><li>rice</li><li>wheat</li></ul>", "rice\nwheat"},
		{"collapsed whitespace", "<p>a   b  c</p>", "a b c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTMLToText(tt.in); got != tt.want {
				t.Errorf("HTMLToText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
