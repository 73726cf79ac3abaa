package client

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// URLOptions configures which backend base URLs are accepted.
type URLOptions struct {
	// AllowHTTP permits plain HTTP URLs. HTTPS is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits loopback/private/link-local IP targets and localhost hostnames.
	AllowLocalNetworks bool
}

// LocalDevelopment accepts the default http://localhost:8000 service.
var LocalDevelopment = URLOptions{AllowHTTP: true, AllowLocalNetworks: true}

// NormalizeBaseURL validates rawURL and returns it without trailing slashes, query or fragment.
func NormalizeBaseURL(rawURL string, opts URLOptions) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("server URL is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !opts.AllowHTTP {
			return "", fmt.Errorf("http scheme is not allowed for %q", rawURL)
		}
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("server URL host is required")
	}

	if !opts.AllowLocalNetworks {
		if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
			return "", fmt.Errorf("local hostname %q is not allowed", host)
		}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if addr.IsUnspecified() || addr.IsMulticast() {
			return "", fmt.Errorf("disallowed IP address %q", host)
		}
		if !opts.AllowLocalNetworks {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
				return "", fmt.Errorf("local network IP %q is not allowed", host)
			}
		}
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawPath = ""

	return parsed.String(), nil
}
