package registry

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/fastdata/cepbridge/internal/models"
)

// NormalizeURL returns the canonical form of an event sink URL: scheme and
// host lower-cased, default port and trailing slash removed, query kept,
// fragment dropped. Only absolute http and https URLs are accepted.
func NormalizeURL(raw string) (string, error) {
	key, query, err := parseSinkURL(raw)
	if err != nil {
		return "", err
	}
	if query != "" {
		return key + "?" + query, nil
	}
	return key, nil
}

// SinkKey returns the identity of an event sink URL: the canonical scheme,
// host and path. URLs that differ only in their query share one identity.
func SinkKey(raw string) (string, error) {
	key, _, err := parseSinkURL(raw)
	return key, err
}

func parseSinkURL(raw string) (key, query string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("empty url: %w", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %v: %w", raw, err, ErrInvalidURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", fmt.Errorf("unsupported scheme in %q: %w", raw, ErrInvalidURL)
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", "", fmt.Errorf("missing host in %q: %w", raw, ErrInvalidURL)
	}

	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	key = scheme + "://" + host + strings.TrimRight(u.EscapedPath(), "/")
	return key, u.RawQuery, nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// entityMatcher matches concrete entity ids against a registered pattern.
// A pattern without regexp metacharacters matches only itself; anything
// else is a regular expression anchored at both ends.
type entityMatcher struct {
	literal string
	re      *regexp.Regexp
}

func compileEntityPattern(pattern string) (entityMatcher, error) {
	if regexp.QuoteMeta(pattern) == pattern {
		return entityMatcher{literal: pattern}, nil
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return entityMatcher{}, fmt.Errorf("entity id pattern %q: %v: %w", pattern, err, ErrInvalidIdentity)
	}
	return entityMatcher{re: regexp.MustCompile("^(?:" + pattern + ")$")}, nil
}

func (m entityMatcher) match(entityID string) bool {
	if m.re == nil {
		return m.literal == entityID
	}
	return m.re.MatchString(entityID)
}

func validateIdentity(id models.AttributeIdentity) error {
	if strings.TrimSpace(id.EntityType) == "" {
		return fmt.Errorf("entity_type is required: %w", ErrInvalidIdentity)
	}
	if strings.TrimSpace(id.EntityIDPattern) == "" {
		return fmt.Errorf("entity_id_pattern is required: %w", ErrInvalidIdentity)
	}
	if strings.TrimSpace(id.AttributeName) == "" {
		return fmt.Errorf("attribute is required: %w", ErrInvalidIdentity)
	}
	return nil
}
