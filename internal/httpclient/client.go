// Package httpclient builds the resty clients used for the work source,
// the HTTP orchestrator and the training trigger.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/version"
)

// Options configures a client
type Options struct {
	Timeout        time.Duration
	APIKey         string   // sent as a Bearer token when set
	AllowedSchemes []string // default: http, https
	MaxRedirects   int      // default: 10
	BlockPrivateIP bool     // refuse loopback/RFC 1918 targets, including after DNS resolution
}

func (o Options) schemes() []string {
	if len(o.AllowedSchemes) == 0 {
		return []string{"http", "https"}
	}
	return o.AllowedSchemes
}

func (o Options) maxRedirects() int {
	if o.MaxRedirects <= 0 {
		return 10
	}
	return o.MaxRedirects
}

// New returns a resty client with timeout, user agent, auth and redirect policy applied
func New(opts Options) *resty.Client {
	client := resty.New().
		SetHeader("User-Agent", "nkosched/"+version.Short()).
		SetHeader("Accept", "application/json")

	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}

	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= opts.maxRedirects() {
			return errors.Newf("stopped after %d redirects", opts.maxRedirects())
		}
		if err := validateURL(req.URL, opts); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}))

	if opts.BlockPrivateIP {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		client.SetTransport(&http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}
				for _, ip := range ips {
					if isPrivateIP(ip) {
						return nil, errors.Newf("private IP address blocked: %s", ip)
					}
				}
				return dialer.DialContext(ctx, network, addr)
			},
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		})
	}
	return client
}

// ValidateURL parses raw and checks it against opts
func ValidateURL(raw string, opts Options) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL %q", raw)
	}
	if err := validateURL(u, opts); err != nil {
		return nil, err
	}
	return u, nil
}

func validateURL(u *url.URL, opts Options) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range opts.schemes() {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, opts.schemes())
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}
	if opts.BlockPrivateIP {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", hostname)
		}
	}
	return nil
}

var privateBlocks = []net.IPNet{
	{IP: net.IPv4(10, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
	{IP: net.IPv4(172, 16, 0, 0), Mask: net.CIDRMask(12, 32)},
	{IP: net.IPv4(192, 168, 0, 0), Mask: net.CIDRMask(16, 32)},
	{IP: net.IPv4(127, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
	{IP: net.IPv4(169, 254, 0, 0), Mask: net.CIDRMask(16, 32)},
	{IP: net.IPv4(0, 0, 0, 0), Mask: net.CIDRMask(8, 32)},
}

// isPrivateIP reports loopback, link-local, RFC 1918 and unique-local addresses
func isPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		for _, block := range privateBlocks {
			if block.Contains(ip4) {
				return true
			}
		}
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return true
	}
	// fc00::/7
	return len(ip) == net.IPv6len && ip[0]&0xfe == 0xfc
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" || strings.HasSuffix(hostname, ".localhost")
}

// StatusError converts a non-2xx response into an error carrying the status
// and a bounded excerpt of the body. 5xx and 429 are transient.
func StatusError(resp *resty.Response) error {
	if resp == nil || resp.IsSuccess() {
		return nil
	}
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	err := errors.Newf("HTTP %d from %s: %s", resp.StatusCode(), resp.Request.URL, body)
	if resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests {
		return errors.MarkTransient(err)
	}
	return err
}
