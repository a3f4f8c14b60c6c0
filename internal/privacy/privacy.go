// Package privacy scrubs broker URLs, credentials and incident coordinates
// from messages before they leave the process.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Pre-compiled patterns, ScrubMessage runs on every reported error
var (
	// broker and HTTP endpoints
	urlPattern = regexp.MustCompile(`\b(?:https?|tcp|ssl|tls|mqtts?|wss?)://\S+`)

	// go-sql-driver DSN: user:password@tcp(host:port)/db
	dsnPattern = regexp.MustCompile(`\b[^\s:@/]+:[^\s@]*@(?:tcp|unix)\([^)]*\)/\S*`)

	// lat,lon pairs with at least four decimals
	coordinatePattern = regexp.MustCompile(`-?\d{1,3}\.\d{4,}\s*,\s*-?\d{1,3}\.\d{4,}`)

	secretPattern = regexp.MustCompile(`(?i)\b(password|passwd|token|secret)\s*[=:]\s*\S+`)
)

// ScrubMessage removes or anonymizes sensitive information from a message.
func ScrubMessage(message string) string {
	scrubbed := dsnPattern.ReplaceAllString(message, "[DSN]")
	scrubbed = urlPattern.ReplaceAllStringFunc(scrubbed, AnonymizeURL)
	scrubbed = secretPattern.ReplaceAllString(scrubbed, "$1=[REDACTED]")
	return coordinatePattern.ReplaceAllString(scrubbed, "[LAT],[LON]")
}

// AnonymizeURL converts a URL to a stable hash that keeps the scheme, host
// category and port, so the same broker always maps to the same value.
func AnonymizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	var normalizedParts []string
	if parsedURL.Scheme != "" {
		normalizedParts = append(normalizedParts, parsedURL.Scheme)
	}
	if host := parsedURL.Hostname(); host != "" {
		normalizedParts = append(normalizedParts, categorizeHost(host))
	}
	if port := parsedURL.Port(); port != "" {
		normalizedParts = append(normalizedParts, "port-"+port)
	}
	if path := strings.Trim(parsedURL.Path, "/"); path != "" {
		normalizedParts = append(normalizedParts, fmt.Sprintf("depth-%d", strings.Count(path, "/")+1))
	}

	hash := sha256.Sum256([]byte(strings.Join(normalizedParts, ":")))
	return fmt.Sprintf("url-%x", hash[:12])
}

// SanitizeBrokerURL strips credentials, path and query from a broker URL and
// returns a display-friendly scheme://host:port. Unparseable input is hashed.
func SanitizeBrokerURL(broker string) string {
	u, err := url.Parse(broker)
	if err != nil || u.Host == "" {
		return AnonymizeURL(broker)
	}
	return u.Scheme + "://" + u.Host
}

// categorizeHost anonymizes hostnames while preserving useful categorization
func categorizeHost(host string) string {
	if host == "localhost" {
		return "localhost"
	}

	if ip := net.ParseIP(host); ip != nil {
		switch {
		case ip.IsLoopback():
			return "localhost"
		case ip.IsPrivate():
			return "private-ip"
		default:
			return "public-ip"
		}
	}

	// For domain names, preserve TLD only
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return "domain-" + parts[len(parts)-1]
	}
	return "unknown-host"
}
