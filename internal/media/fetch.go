package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrBlockedHost is returned when an image URL points at a non-public address.
var ErrBlockedHost = errors.New("media: image host is not publicly routable")

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Fetcher downloads remote images such as user-provided photo URLs.
type Fetcher struct {
	client *resty.Client
	// allowed reports whether a resolved address may be dialed.
	allowed func(netip.AddrPort) bool
}

// NewFetcher builds a fetcher with the given request timeout. Only public
// addresses are dialed, including after redirects.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &Fetcher{allowed: publicAddrPort}

	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: f.control,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}

	f.client = resty.New().
		SetTransport(transport).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(3)).
		SetHeader("Accept", "image/*").
		OnBeforeRequest(checkScheme)
	return f
}

// Fetch downloads the image at url, or decodes it when url is a data URI.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Image, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Image{}, fmt.Errorf("media: image url is required")
	}
	if strings.HasPrefix(url, "data:") {
		return ParseDataURI(url)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return Image{}, fmt.Errorf("media: fetch image: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 300 {
		return Image{}, fmt.Errorf("media: image status %d from %s", resp.StatusCode(), url)
	}

	data, err := readLimited(body, MaxImageBytes)
	if err != nil {
		return Image{}, err
	}
	return NewImage(data, resp.Header().Get("Content-Type"))
}

// control runs after DNS resolution, so it sees the address actually dialed.
func (f *Fetcher) control(_, address string, _ syscall.RawConn) error {
	addr, err := netip.ParseAddrPort(address)
	if err != nil || !f.allowed(netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	return nil
}

func publicAddrPort(addr netip.AddrPort) bool {
	return publicAddr(addr.Addr())
}

func publicAddr(addr netip.Addr) bool {
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return true
}

func checkScheme(_ *resty.Client, req *resty.Request) error {
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("media: invalid image url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("media: unsupported image url scheme %q", u.Scheme)
	}
	return nil
}
