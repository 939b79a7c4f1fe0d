package websearch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	defaultUserAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// DuckDuckGo scrapes the keyless HTML endpoint.
type DuckDuckGo struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

var _ Provider = &DuckDuckGo{}

func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		BaseURL:   DefaultDuckDuckGoURL,
		UserAgent: defaultUserAgent,
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{"q": {query}}
	if opts.Language != "" {
		params.Set("kl", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "duckduckgo: build request")
	}
	ua := d.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "duckduckgo: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("duckduckgo: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "duckduckgo: parse html")
	}

	var results []Result
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		link := s.Find(".result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     resolveRedirect(href),
			Snippet: strings.TrimSpace(s.Find(".result__snippet").First().Text()),
		})
	})
	log.Debug().Str("query", query).Int("results", len(results)).Msg("websearch: duckduckgo search")

	return limit(results, opts.Count), nil
}

// resolveRedirect unwraps "//duckduckgo.com/l/?uddg=<target>" links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}
