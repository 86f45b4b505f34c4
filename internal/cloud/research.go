// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/jeranaias/vibecode/internal/logging"
	"github.com/jeranaias/vibecode/internal/offline"
	"github.com/jeranaias/vibecode/internal/util"
)

const (
	// DefaultResearchURL is the instant-answer API queried for web context.
	DefaultResearchURL = "https://api.duckduckgo.com/"

	// MaxQueryRunes caps the research query.
	MaxQueryRunes = 320

	// MaxSources caps the numbered source lines.
	MaxSources = 6

	researchTimeout  = 10 * time.Second
	maxResearchBytes = 2 * 1024 * 1024
)

// WebResearcher fetches instant-answer context for research prompts. Every
// failure yields "" so research never blocks a call.
type WebResearcher struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

// NewWebResearcher creates a researcher for endpoint (DefaultResearchURL
// when empty) allowing ratePerSec lookups per second.
func NewWebResearcher(endpoint string, ratePerSec float64, logger *logrus.Logger) *WebResearcher {
	if endpoint == "" {
		endpoint = DefaultResearchURL
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &WebResearcher{
		endpoint:   endpoint,
		httpClient: sharedHTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
		log:        logging.Component(logger, "research"),
	}
}

// WithHTTPClient replaces the HTTP client.
func (w *WebResearcher) WithHTTPClient(c *http.Client) *WebResearcher {
	w.httpClient = c
	return w
}

// NormalizeQuery applies NFKC, trims, and caps the query at MaxQueryRunes.
func NormalizeQuery(query string) string {
	q := strings.TrimSpace(norm.NFKC.String(query))
	return util.FirstRunes(q, MaxQueryRunes)
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// Gather returns numbered source lines for query, or "" when nothing could
// be found.
func (w *WebResearcher) Gather(ctx context.Context, query string) string {
	q := NormalizeQuery(query)
	if q == "" {
		return ""
	}
	if err := offline.CheckWebFetchAllowed(); err != nil {
		w.log.Debug("web research skipped in offline mode")
		return ""
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return ""
	}

	data, err := w.fetch(ctx, q)
	if err != nil {
		w.log.WithError(err).Debug("web research failed")
		return ""
	}
	return FormatResearch(q, researchLines(data))
}

func (w *WebResearcher) fetch(ctx context.Context, q string) (*ddgResponse, error) {
	u, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, err
	}
	params := u.Query()
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")
	u.RawQuery = params.Encode()

	ctx, cancel := context.WithTimeout(ctx, researchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var data ddgResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResearchBytes)).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// researchLines collects up to MaxSources "text (url)" entries: the abstract
// first, then related topics with one level of nested topics.
func researchLines(data *ddgResponse) []string {
	var lines []string
	if data.AbstractText != "" && data.AbstractURL != "" {
		lines = append(lines, fmt.Sprintf("%s (%s)", data.AbstractText, data.AbstractURL))
	}
	for _, topic := range data.RelatedTopics {
		if len(lines) >= MaxSources {
			break
		}
		if topic.Text != "" && topic.FirstURL != "" {
			lines = append(lines, fmt.Sprintf("%s (%s)", topic.Text, topic.FirstURL))
			continue
		}
		for _, child := range topic.Topics {
			if len(lines) >= MaxSources {
				break
			}
			if child.Text != "" && child.FirstURL != "" {
				lines = append(lines, fmt.Sprintf("%s (%s)", child.Text, child.FirstURL))
			}
		}
	}
	return lines
}

// FormatResearch numbers lines as [1], [2] ... under a header naming the
// query. No lines gives "".
func FormatResearch(query string, lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Web research context for \"%s\":\n", query)
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, line)
	}
	return b.String()
}
