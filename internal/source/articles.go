package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ppiankov/leaguenews/internal/snapshot"
)

const (
	articlesSourceName = "official_articles"
	articlesInterval   = time.Second
)

// ArticlesContent is the official news article snapshot.
type ArticlesContent struct {
	Articles     map[string]snapshot.Time `json:"articles"`
	Titles       map[string]string        `json:"titles"`
	Descriptions map[string]string        `json:"descriptions"`
	Links        map[string]string        `json:"links"`
	Images       map[string]string        `json:"images"`
}

// ArticleEntry is one published article.
type ArticleEntry struct {
	ID          string        `json:"id"`
	Date        snapshot.Time `json:"date"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
	Image       string        `json:"image,omitempty"`
}

// ArticlesSource reads the latest-news page data of the official site.
type ArticlesSource struct {
	site   string
	locale string
	client *http.Client
	policy *bluemonday.Policy
}

// NewArticles creates the article scraper for site (scheme and host) and locale.
func NewArticles(site, locale string) (*ArticlesSource, error) {
	site = strings.TrimRight(strings.TrimSpace(site), "/")
	if site == "" {
		return nil, errors.New("articles: site is required")
	}
	if strings.TrimSpace(locale) == "" {
		return nil, errors.New("articles: locale is required")
	}
	return &ArticlesSource{
		site:   site,
		locale: locale,
		client: newHTTPClient(articlesInterval, userAgent),
		policy: bluemonday.StrictPolicy(),
	}, nil
}

func (as *ArticlesSource) Name() string {
	return articlesSourceName
}

func (as *ArticlesSource) InitContent() ArticlesContent {
	return ArticlesContent{
		Articles:     map[string]snapshot.Time{},
		Titles:       map[string]string{},
		Descriptions: map[string]string{},
		Links:        map[string]string{},
		Images:       map[string]string{},
	}
}

func (as *ArticlesSource) Scrape(ctx context.Context, old ArticlesContent, opts Options) (Result[ArticlesContent], error) {
	next := as.InitContent()
	var (
		mu    sync.Mutex
		tally Tally
	)

	walk := Walk[articleNode]{
		Fetch:      as.page,
		Published:  func(n articleNode) time.Time { return n.published },
		MaxAge:     opts.MaxAge,
		MaxEntries: opts.MaxEntries,
	}
	_, err := walk.Run(ctx, func(n articleNode) (bool, error) {
		if n.UID == "" {
			return false, fmt.Errorf("article %q: %w", n.Title, ErrIdentity)
		}

		var o Outcome
		mu.Lock()
		defer mu.Unlock()

		next.Articles[n.UID] = snapshot.At(n.published)
		if known(old.Articles, n.UID) {
			carry(next.Titles, old.Titles, n.UID)
			carry(next.Descriptions, old.Descriptions, n.UID)
			carry(next.Links, old.Links, n.UID)
			carry(next.Images, old.Images, n.UID)
			o.Inherited = true
		}

		filled := fill(next.Titles, n.UID, strings.TrimSpace(n.Title))
		filled = fill(next.Descriptions, n.UID, as.sanitize(n.Description)) || filled
		filled = fill(next.Images, n.UID, n.Banner.URL) || filled
		if _, ok := next.Links[n.UID]; !ok {
			link, err := as.link(n)
			if err != nil {
				return false, err
			}
			filled = fill(next.Links, n.UID, link) || filled
		}

		o.NewInformation = filled
		tally.Add(o)
		return true, nil
	})
	if err != nil {
		return Result[ArticlesContent]{}, fmt.Errorf("articles: %w", err)
	}

	return Result[ArticlesContent]{
		Content:        next,
		NewEntries:     tally.New,
		UpdatedEntries: tally.Updated,
		TotalEntries:   tally.Total,
	}, nil
}

func (as *ArticlesSource) Compress(content ArticlesContent) []ArticleEntry {
	entries := make([]ArticleEntry, 0, len(content.Articles))
	for id, date := range content.Articles {
		entries = append(entries, ArticleEntry{
			ID:          id,
			Date:        date,
			Title:       content.Titles[id],
			Description: content.Descriptions[id],
			URL:         content.Links[id],
			Image:       content.Images[id],
		})
	}
	sortEntries(entries,
		func(e ArticleEntry) time.Time { return e.Date.Time },
		func(e ArticleEntry) string { return e.ID })
	return entries
}

// page fetches the whole listing; the page data has no cursor.
func (as *ArticlesSource) page(ctx context.Context, _ string) (Page[articleNode], error) {
	req, err := newGet(ctx, fmt.Sprintf("%s/page-data/%s/latest-news/page-data.json", as.site, as.locale))
	if err != nil {
		return Page[articleNode]{}, err
	}

	var data articlesPageData
	if err := getJSON(as.client, req, &data); err != nil {
		return Page[articleNode]{}, err
	}

	edges := data.Result.Data.AllArticles.Edges
	nodes := make([]articleNode, 0, len(edges))
	for _, edge := range edges {
		n := edge.Node
		published, err := snapshot.ParseTime(n.Date)
		if err != nil {
			return Page[articleNode]{}, fmt.Errorf("article %s: %w", n.UID, err)
		}
		n.published = published
		nodes = append(nodes, n)
	}
	return Page[articleNode]{Items: nodes}, nil
}

// link picks the article destination: an external link, then a video link,
// then the article's page on the site.
func (as *ArticlesSource) link(n articleNode) (string, error) {
	switch {
	case n.ExternalLink != "":
		return n.ExternalLink, nil
	case n.YouTubeLink != "":
		return n.YouTubeLink, nil
	case n.URL.URL != "":
		return as.site + "/" + as.locale + n.URL.URL, nil
	default:
		return "", fmt.Errorf("article %s: could not resolve url: %w", n.UID, ErrIdentity)
	}
}

func (as *ArticlesSource) sanitize(s string) string {
	return strings.TrimSpace(as.policy.Sanitize(s))
}

type articlesPageData struct {
	Result struct {
		Data struct {
			AllArticles struct {
				Edges []struct {
					Node articleNode `json:"node"`
				} `json:"edges"`
			} `json:"allArticles"`
		} `json:"data"`
	} `json:"result"`
}

type articleNode struct {
	UID          string `json:"uid"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	Description  string `json:"description"`
	ExternalLink string `json:"external_link"`
	YouTubeLink  string `json:"youtube_link"`
	URL          struct {
		URL string `json:"url"`
	} `json:"url"`
	Banner struct {
		URL string `json:"url"`
	} `json:"banner"`

	published time.Time
}
