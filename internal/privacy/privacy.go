// Package privacy provides helpers that strip sensitive data from messages
// before they leave the process, and generates anonymous system identifiers.
package privacy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Pre-compiled patterns
var (
	urlPattern = regexp.MustCompile(`\b(?:https?|grpc|tcp)://\S+`)

	// Absolute paths with at least two segments, e.g. /home/alice/models/health.tflite
	pathPattern = regexp.MustCompile(`(?:^|[\s"'(=])((?:/[\w.\-]+){2,})`)

	// Long base64 runs are request image data
	imageDataPattern = regexp.MustCompile(`[A-Za-z0-9+/_\-]{64,}={0,2}`)

	tokenPattern = regexp.MustCompile(`(?i)\b(token|api[_-]?key|secret|password|dsn)([=:]\s*)\S+`)
)

// ScrubMessage removes or anonymizes sensitive information in a message.
// URLs are hashed, absolute paths keep only their file name, inline
// credentials are redacted and image payload fragments are dropped.
func ScrubMessage(message string) string {
	if message == "" {
		return message
	}
	scrubbed := urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
	scrubbed = tokenPattern.ReplaceAllString(scrubbed, "$1$2[REDACTED]")
	scrubbed = imageDataPattern.ReplaceAllString(scrubbed, "[IMAGE_DATA]")
	scrubbed = pathPattern.ReplaceAllStringFunc(scrubbed, anonymizeFilePath)
	return scrubbed
}

// AnonymizeURL converts a URL to a stable hash that keeps the scheme, host
// category, port and path shape but none of the identifying parts.
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
	if parsedURL.Port() != "" {
		normalizedParts = append(normalizedParts, "port-"+parsedURL.Port())
	}
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		normalizedParts = append(normalizedParts, anonymizeURLPath(parsedURL.Path))
	}

	hash := sha256.Sum256([]byte(strings.Join(normalizedParts, ":")))
	return fmt.Sprintf("url-%x", hash[:12])
}

// GenerateSystemID creates a random identifier formatted as XXXX-XXXX-XXXX.
func GenerateSystemID() (string, error) {
	bytes := make([]byte, 6)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	id := hex.EncodeToString(bytes)
	return strings.ToUpper(fmt.Sprintf("%s-%s-%s", id[0:4], id[4:8], id[8:12])), nil
}

// IsValidSystemID checks if a system ID has the XXXX-XXXX-XXXX format
func IsValidSystemID(id string) bool {
	if len(id) != 14 || id[4] != '-' || id[9] != '-' {
		return false
	}
	for i, char := range id {
		if i == 4 || i == 9 {
			continue
		}
		if !isHexChar(char) {
			return false
		}
	}
	return true
}

// anonymizeFilePath keeps the leading delimiter and the file name of a matched path.
func anonymizeFilePath(match string) string {
	prefix := ""
	if match != "" && match[0] != '/' {
		prefix, match = match[:1], match[1:]
	}
	return prefix + ".../" + path.Base(match)
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
		case ip.IsPrivate(), ip.IsLinkLocalUnicast():
			return "private-ip"
		default:
			return "public-ip"
		}
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return "domain-" + parts[len(parts)-1]
	}
	return "unknown-host"
}

// anonymizeURLPath hashes each path segment, keeping numeric segments and
// the prediction routes recognizable.
func anonymizeURLPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "root"
	}

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		switch {
		case segment == "":
			continue
		case segment == "predict" || segment == "metrics" || segment == "healthz":
			out = append(out, segment)
		case isNumeric(segment):
			out = append(out, "numeric")
		default:
			hash := sha256.Sum256([]byte(segment))
			out = append(out, fmt.Sprintf("seg-%x", hash[:4]))
		}
	}
	return strings.Join(out, "/")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isHexChar(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')
}
