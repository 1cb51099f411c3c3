package source

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DefaultTerminalMarkers match the "coming soon" placeholders hosts link to
// after the latest chapter.
var DefaultTerminalMarkers = []string{"coming-soon", "coming_soon", "comingsoon"}

// RootOf returns scheme://host/ of an absolute http(s) URL.
func RootOf(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTP(u) || u.Host == "" {
		return nil, fmt.Errorf("not an absolute http(s) url: %q", raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}

// ResolveNext resolves a next-chapter link against root. It reports false
// when the crawl should end: the link is empty, unparsable, not http(s) after
// resolution, or contains a terminal marker.
func ResolveNext(root *url.URL, raw string, markers []string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || root == nil {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	resolved := root.ResolveReference(ref)
	if !isHTTP(resolved) || resolved.Host == "" {
		return "", false
	}
	resolved.Fragment = ""
	next := resolved.String()
	if IsTerminal(next, markers) {
		return "", false
	}
	return next, true
}

// IsTerminal reports whether link contains any marker, case-insensitively.
func IsTerminal(link string, markers []string) bool {
	lower := strings.ToLower(link)
	for _, marker := range markers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// RootDomain returns the registrable domain of a URL or bare host
// ("www.example.co.uk" -> "example.co.uk"). IPs and single-label hosts are
// returned unchanged.
func RootDomain(raw string) (string, error) {
	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse url: %w", err)
		}
		host = u.Hostname()
	} else if h, _, err := net.SplitHostPort(raw); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return domain, nil
}

// ResolveHref resolves an href found on the page at base.
func ResolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if !isHTTP(resolved) {
		return ""
	}
	return resolved.String()
}

func isHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}
