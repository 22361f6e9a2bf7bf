package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/dewei/screenradar/pkg/model"
)

// NewsCollector collects raw news/event items for the "event" alert
// kind's significant_news check and the field catalog's event
// predicates.
type NewsCollector interface {
	Collect(ctx context.Context) ([]*model.NewsEvent, error)
}

// FeedCollector reads a fixed list of RSS/Atom feeds plus a fixed
// list of announcement pages without a feed.
type FeedCollector struct {
	feeds      []string
	scrapeURLs []string
	parser     *gofeed.Parser
	http       *http.Client
}

func NewFeedCollector(feeds, scrapeURLs []string) *FeedCollector {
	return &FeedCollector{
		feeds:      feeds,
		scrapeURLs: scrapeURLs,
		parser:     gofeed.NewParser(),
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (f *FeedCollector) Collect(ctx context.Context) ([]*model.NewsEvent, error) {
	var out []*model.NewsEvent

	for _, feedURL := range f.feeds {
		items, err := f.collectFeed(ctx, feedURL)
		if err != nil {
			log.Warn().Err(err).Str("feed", feedURL).Msg("news feed fetch failed")
			continue
		}
		out = append(out, items...)
	}

	for _, pageURL := range f.scrapeURLs {
		items, err := f.scrapePage(ctx, pageURL)
		if err != nil {
			log.Warn().Err(err).Str("url", pageURL).Msg("news scrape failed")
			continue
		}
		out = append(out, items...)
	}

	return out, nil
}

func (f *FeedCollector) collectFeed(ctx context.Context, feedURL string) ([]*model.NewsEvent, error) {
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("collector: parse feed %s: %w", feedURL, err)
	}

	out := make([]*model.NewsEvent, 0, len(feed.Items))
	for _, item := range feed.Items {
		text := item.Title + " " + item.Description
		sentiment, impact := classifyNews(item.Title, item.Description)

		publishedAt := time.Now()
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		}

		out = append(out, &model.NewsEvent{
			Symbol:      extractSymbol(text),
			Title:       item.Title,
			Content:     item.Content,
			Summary:     item.Description,
			Source:      feed.Title,
			Author:      authorName(item),
			URL:         item.Link,
			Sentiment:   sentiment,
			Impact:      impact,
			Keywords:    extractKeywords(text),
			PublishedAt: publishedAt,
		})
	}
	return out, nil
}

func (f *FeedCollector) scrapePage(ctx context.Context, pageURL string) ([]*model.NewsEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("collector: build scrape request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collector: scrape request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collector: scrape %s returned %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("collector: parse html: %w", err)
	}

	var out []*model.NewsEvent
	doc.Find("article, .news-item, .announcement").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h1, h2, h3, .title").First().Text())
		if title == "" {
			return
		}
		summary := strings.TrimSpace(s.Find("p, .summary, .abstract").First().Text())
		link, _ := s.Find("a").First().Attr("href")
		text := title + " " + summary
		sentiment, impact := classifyNews(title, summary)

		out = append(out, &model.NewsEvent{
			Symbol:      extractSymbol(text),
			Title:       title,
			Summary:     summary,
			Source:      pageURL,
			URL:         link,
			Sentiment:   sentiment,
			Impact:      impact,
			Keywords:    extractKeywords(text),
			PublishedAt: time.Now(),
		})
	})
	return out, nil
}

func authorName(item *gofeed.Item) string {
	if item.Author != nil {
		return item.Author.Name
	}
	return ""
}

var (
	negativeKeywords = []string{"plunge", "crash", "loss", "risk", "warning", "downgrade", "lawsuit", "recall"}
	positiveKeywords = []string{"surge", "rally", "profit", "beat", "upgrade", "breakthrough", "growth"}
	highImpactWords  = []string{"major", "breaking", "urgent", "critical", "material"}
)

// classifyNews scores sentiment and impact with a keyword-count
// heuristic over the title and body.
func classifyNews(title, content string) (model.NewsSentiment, float64) {
	text := strings.ToLower(title + " " + content)

	var negative, positive int
	for _, kw := range negativeKeywords {
		if strings.Contains(text, kw) {
			negative++
		}
	}
	for _, kw := range positiveKeywords {
		if strings.Contains(text, kw) {
			positive++
		}
	}

	sentiment := model.NewsSentimentNeutral
	switch {
	case positive > negative:
		sentiment = model.NewsSentimentPositive
	case negative > positive:
		sentiment = model.NewsSentimentNegative
	}

	impact := 0.3
	titleLower := strings.ToLower(title)
	for _, kw := range highImpactWords {
		if strings.Contains(titleLower, kw) {
			impact += 0.3
			break
		}
	}
	impact += 0.1 * float64(negative+positive)
	if impact > 1.0 {
		impact = 1.0
	}

	return sentiment, impact
}

func extractKeywords(text string) model.StringSlice {
	candidates := []string{"earnings", "buyback", "dividend", "guidance", "merger", "acquisition", "ipo", "split"}
	lower := strings.ToLower(text)
	var found model.StringSlice
	for _, c := range candidates {
		if strings.Contains(lower, c) {
			found = append(found, c)
		}
	}
	return found
}

// extractSymbol pulls a single all-caps ticker-looking token (2-5
// letters) out of a headline/body; returns "" for general market news
// with no specific instrument (an empty Symbol means a market-wide
// item).
func extractSymbol(text string) string {
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, "()[]{}:,.\"'")
		if len(word) < 2 || len(word) > 5 {
			continue
		}
		if word == strings.ToUpper(word) && isAllLetters(word) {
			return word
		}
	}
	return ""
}

func isAllLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
