// Package security はお知らせフィードとURL指定の画像判定が扱う、
// 信頼できない外部入力のための防御層を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService は利用者が与えたURLへの到達を内部ネットワークから
// 隔離する。対象はCROPID_NEWS_FEED_URLのフィード取得と
// `predict --url` の画像取得の2経路。
type SSRFGuardService interface {
	// NewSafeClient は取得用のHTTPクライアントを生成する。
	// safeurlがnet.DialerのControlフックでDNS解決後のIPアドレスを
	// 検証するため、DNS再バインディングを含む内部到達が遮断される。
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client

	// ValidateURL はリクエスト発行前の静的検証を行う。
	// 入力を受け取った時点で即座にエラーを返すための早期チェックであり、
	// DNS解決後の防御はNewSafeClientのクライアント側が担う。
	ValidateURL(rawURL string) error
}

// fetchSchemes はフィード・画像URLで受け付けるスキーム。
var fetchSchemes = []string{"http", "https"}

// deniedRange はValidateURLの静的照合でブロックするアドレス帯。
type deniedRange struct {
	network *net.IPNet
	reason  string
}

// deniedRanges は到達を拒否する内部アドレス帯。
// リンクローカル帯はクラウドメタデータIP (169.254.169.254) を含む。
var deniedRanges = []deniedRange{
	{mustCIDR("10.0.0.0/8"), "private address"},
	{mustCIDR("172.16.0.0/12"), "private address"},
	{mustCIDR("192.168.0.0/16"), "private address"},
	{mustCIDR("127.0.0.0/8"), "loopback address"},
	{mustCIDR("169.254.0.0/16"), "link-local address"},
	{mustCIDR("0.0.0.0/8"), "current-network address"},
	{mustCIDR("::1/128"), "loopback address"},
	{mustCIDR("fe80::/10"), "link-local address"},
	{mustCIDR("fc00::/7"), "unique-local address"},
}

func mustCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
	}
	return network
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient は取得用のHTTPクライアントを生成する。
// safeurlのデフォルトポリシーにより、プライベート・ループバック・
// リンクローカル・メタデータの各アドレスへの接続が遮断される。
// フィードも画像も標準ポート (80, 443) でのみ配信されるため、
// それ以外のポートは受け付けない。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(fetchSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// ValidateURL はリクエスト発行前の静的検証を行う。
// スキーム・ホストの形、IPリテラルの内部アドレス帯照合、危険な
// ホスト名の拒否を行う。ホスト名のDNS解決はここでは行わない。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL must not be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if !isFetchScheme(parsed.Scheme) {
		return fmt.Errorf("scheme %q is not fetchable (allowed: %v)", parsed.Scheme, fetchSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, denied := range deniedRanges {
			if denied.network.Contains(ip) {
				return fmt.Errorf("refusing %s: %s", denied.reason, ip.String())
			}
		}
		return nil
	}

	if isLocalHostname(host) {
		return fmt.Errorf("refusing local hostname: %s", host)
	}
	return nil
}

// isFetchScheme はスキームが取得可能かを検証する。
func isFetchScheme(scheme string) bool {
	for _, allowed := range fetchSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isLocalHostname はローカルを指すホスト名を検出する。
// RFC 6761によりlocalhostとその配下のラベルはループバックへ解決される。
func isLocalHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	return lower == "localhost" || strings.HasSuffix(lower, ".localhost")
}
