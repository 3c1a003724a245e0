package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var _ SSRFGuardService = (*ssrfGuard)(nil)

// TestValidateURL_PublicEndpoints は公開配信されるフィード・画像URLの
// 検証が成功することを検証する。
func TestValidateURL_PublicEndpoints(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name string
		url  string
	}{
		{"announcement feed", "https://news.cropai.example/announcements.xml"},
		{"feed over plain http", "http://news.cropai.example/announcements.xml"},
		{"field photo on CDN", "https://cdn.cropai.example/fields/plot-42.jpg"},
		{"partner-hosted image", "https://photos.agri-coop.example.in/paddy.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := guard.ValidateURL(tt.url); err != nil {
				t.Errorf("ValidateURL(%q) returned error: %v", tt.url, err)
			}
		})
	}
}

// TestValidateURL_InternalAddresses は内部アドレスを指すURLの拒否を
// 検証する。フィードURLは環境変数、画像URLはコマンド引数から来るため、
// どちらも到達前に遮断されなければならない。
func TestValidateURL_InternalAddresses(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name string
		url  string
	}{
		{"private 10/8", "http://10.0.0.1/announcements.xml"},
		{"private 172.16/12", "http://172.16.0.1/announcements.xml"},
		{"private 192.168/16", "http://192.168.1.100/fields/plot-42.jpg"},
		{"loopback", "http://127.0.0.1/fields/plot-42.jpg"},
		{"loopback alias", "http://127.0.0.2/announcements.xml"},
		{"localhost", "http://localhost/announcements.xml"},
		{"localhost with trailing dot", "http://localhost./announcements.xml"},
		{"localhost subdomain", "http://feed.localhost/announcements.xml"},
		{"link-local", "http://169.254.0.1/fields/plot-42.jpg"},
		{"AWS metadata", "http://169.254.169.254/latest/meta-data/"},
		{"GCP metadata", "http://169.254.169.254/computeMetadata/v1/"},
		{"zero address", "http://0.0.0.0/announcements.xml"},
		{"IPv6 loopback", "http://[::1]/announcements.xml"},
		{"IPv6 link-local", "http://[fe80::1]/fields/plot-42.jpg"},
		{"IPv6 unique-local", "http://[fc00::1]/announcements.xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := guard.ValidateURL(tt.url); err == nil {
				t.Errorf("ValidateURL(%q) should have been refused", tt.url)
			}
		})
	}
}

// TestValidateURL_MalformedOrNonFetchable は取得対象になり得ないURLの
// 拒否を検証する。
func TestValidateURL_MalformedOrNonFetchable(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "not-a-url"},
		{"ftp scheme", "ftp://cdn.cropai.example/paddy.png"},
		{"file scheme", "file:///etc/passwd"},
		{"data scheme", "data:image/png;base64,abc"},
		{"scheme only", "https://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := guard.ValidateURL(tt.url); err == nil {
				t.Errorf("ValidateURL(%q) should have been refused", tt.url)
			}
		})
	}
}

// TestNewSafeClient_AppliesTimeout はフィード取得のタイムアウト設定が
// クライアントに反映されることを検証する。
func TestNewSafeClient_AppliesTimeout(t *testing.T) {
	guard := NewSSRFGuard()
	timeout := 5 * time.Second

	client := guard.NewSafeClient(timeout, 2*1024*1024)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != timeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, timeout)
	}
}

// TestNewSafeClient_UsesGuardedTransport はDNS解決後の検証を行う
// カスタムTransportが設定されていることを検証する。
func TestNewSafeClient_UsesGuardedTransport(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5*time.Second, 2*1024*1024)

	if client.Transport == nil {
		t.Fatal("expected guarded Transport, got nil")
	}
	if client.Transport == http.DefaultTransport {
		t.Fatal("expected guarded Transport, got http.DefaultTransport")
	}
}

// TestNewSafeClient_BlocksLoopbackFetch はDNS解決後のDialer検証が
// ループバックへの取得を遮断することを検証する。httptestのサーバーは
// 127.0.0.1で待ち受けるため、取得は失敗しなければならない。
func TestNewSafeClient_BlocksLoopbackFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5*time.Second, 2*1024*1024)

	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected loopback fetch to be refused, got nil error")
	}
}
