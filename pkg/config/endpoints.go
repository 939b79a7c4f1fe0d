package config

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// validateEndpoint checks a configured service URL. Local addresses are
// accepted since SearXNG, Weaviate and OpenAI-compatible servers are often
// self-hosted.
func validateEndpoint(key, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "%s: invalid URL", key)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return errors.Errorf("%s: unsupported URL scheme %q in %q", key, u.Scheme, raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.Errorf("%s: URL %q has no host", key, raw)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if addr.IsUnspecified() || addr.IsMulticast() {
			return errors.Errorf("%s: %s is not a usable address", key, host)
		}
	}
	return nil
}

func (s *Settings) validateEndpoints() error {
	for key, raw := range map[string]string{
		"openai.base-url":            s.OpenAI.BaseURL,
		"guests.datasets-server-url": s.Guests.DatasetsServerURL,
		"search.searxng-url":         s.Search.SearXNGURL,
		"hub.url":                    s.Hub.URL,
	} {
		if err := validateEndpoint(key, raw); err != nil {
			return err
		}
	}
	return nil
}
