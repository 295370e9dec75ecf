package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrUnsafeURL は外部参照として許可しないURLを表す。
var ErrUnsafeURL = errors.New("unsafe url")

// URLGuard は外部URLの静的検証とSSRF対策済みHTTPクライアントを提供する。
type URLGuard interface {
	// ValidateURL はレッスン動画や添付リソースとして登録されるURLを検証する。
	// DNS解決は行わない。
	ValidateURL(rawURL string) error

	// NewSafeClient はsafeurlでDNS解決後の接続先も検証するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client
}

// GuardOptions はURLGuardの設定。
type GuardOptions struct {
	// AllowPrivate が true の場合はプライベートアドレスへの接続を許可する。
	// 同一ネットワーク内の文字起こしAPIを使う開発環境向け。
	AllowPrivate bool
	// Ports は接続を許可するポート。空の場合は80と443。
	Ports []int
}

// Guard はURLGuardの実装。
type Guard struct {
	opts GuardOptions
}

// NewGuard はGuardを生成する。
func NewGuard(opts GuardOptions) *Guard {
	if len(opts.Ports) == 0 {
		opts.Ports = []int{80, 443}
	}
	return &Guard{opts: opts}
}

// blockedPrefixes は外部参照として許可しないアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// ValidateURL はスキーム、ホスト、IPリテラルを検証する。
// 名前解決後のアドレスはNewSafeClientのDialerで検証される。
func (g *Guard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty", ErrUnsafeURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrUnsafeURL)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in url", ErrUnsafeURL)
	}
	if g.opts.AllowPrivate {
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: host %s", ErrUnsafeURL, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("%w: address %s", ErrUnsafeURL, addr)
			}
		}
	}
	return nil
}

// NewSafeClient はSSRF対策済みのHTTPクライアントを生成する。
// AllowPrivate の場合は接続先を制限しない通常のクライアントを返す。
func (g *Guard) NewSafeClient(timeout time.Duration) *http.Client {
	if g.opts.AllowPrivate {
		return &http.Client{Timeout: timeout}
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(g.opts.Ports...).
		Build()
	return safeurl.Client(config).Client
}

var _ URLGuard = (*Guard)(nil)
