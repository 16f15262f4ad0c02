package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/leaguenews/internal/config"
	"github.com/ppiankov/leaguenews/internal/snapshot"
)

const (
	twitterSourceName  = "league_dev_twitter"
	twitterAPIBase     = "https://api.twitter.com"
	twitterOEmbedBase  = "https://publish.twitter.com"
	twitterPageSize    = 100
	twitterInterval    = 250 * time.Millisecond
	twitterLookupLimit = 8
)

var twitterAuthorKeywords = []string{"riot", "league"}

// TwitterContent is the developer-account tweet snapshot.
type TwitterContent struct {
	Tweets        map[string]snapshot.Time `json:"tweets"`
	EmbedCodes    map[string]string        `json:"embedCodes"`
	Authors       map[string]string        `json:"authors"`       // tweet id -> author id
	AuthorAliases map[string]string        `json:"authorAliases"` // author id -> display name
}

// TwitterEntry is one published tweet.
type TwitterEntry struct {
	ID        string        `json:"id"`
	Date      snapshot.Time `json:"date"`
	Author    string        `json:"author,omitempty"`
	EmbedCode string        `json:"embedCode,omitempty"`
	Text      string        `json:"text,omitempty"`
}

// TwitterSource scrapes the timeline of one developer account, including retweets.
type TwitterSource struct {
	accountID  string
	handle     string
	client     *http.Client
	apiBase    string
	oembedBase string
}

// NewTwitter creates the tweet scraper for accountID. handle is used to build
// status URLs for embed codes.
func NewTwitter(accountID, handle string) (*TwitterSource, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.New("twitter: account id is required")
	}
	if strings.TrimSpace(handle) == "" {
		return nil, errors.New("twitter: handle is required")
	}
	return &TwitterSource{
		accountID:  accountID,
		handle:     handle,
		client:     newHTTPClient(twitterInterval, userAgent),
		apiBase:    twitterAPIBase,
		oembedBase: twitterOEmbedBase,
	}, nil
}

func (t *TwitterSource) Name() string {
	return twitterSourceName
}

func (t *TwitterSource) InitContent() TwitterContent {
	return TwitterContent{
		Tweets:        map[string]snapshot.Time{},
		EmbedCodes:    map[string]string{},
		Authors:       map[string]string{},
		AuthorAliases: map[string]string{},
	}
}

func (t *TwitterSource) Scrape(ctx context.Context, old TwitterContent, opts Options) (Result[TwitterContent], error) {
	token := opts.Credentials.Twitter.BearerToken
	if config.Placeholder(token) {
		return Result[TwitterContent]{}, errors.New("twitter: bearer token is not configured")
	}

	run := &twitterRun{
		TwitterSource: t,
		token:         token,
		old:           old,
		next:          t.InitContent(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(twitterLookupLimit)

	walk := Walk[devTweet]{
		Fetch:      run.page,
		Published:  func(tw devTweet) time.Time { return tw.published },
		MaxAge:     opts.MaxAge,
		MaxEntries: opts.MaxEntries,
	}
	_, walkErr := walk.Run(gctx, func(tw devTweet) (bool, error) {
		g.Go(func() error {
			o, err := run.process(gctx, tw)
			if err != nil {
				return err
			}
			run.tally.Add(o)
			return nil
		})
		return true, nil
	})
	if err := g.Wait(); err != nil {
		return Result[TwitterContent]{}, fmt.Errorf("twitter: %w", err)
	}
	if walkErr != nil {
		return Result[TwitterContent]{}, fmt.Errorf("twitter: %w", walkErr)
	}

	return Result[TwitterContent]{
		Content:        run.next,
		NewEntries:     run.tally.New,
		UpdatedEntries: run.tally.Updated,
		TotalEntries:   run.tally.Total,
	}, nil
}

func (t *TwitterSource) Compress(content TwitterContent) []TwitterEntry {
	entries := make([]TwitterEntry, 0, len(content.Tweets))
	for id, date := range content.Tweets {
		embed := content.EmbedCodes[id]
		entries = append(entries, TwitterEntry{
			ID:        id,
			Date:      date,
			Author:    content.AuthorAliases[content.Authors[id]],
			EmbedCode: embed,
			Text:      embedText(embed),
		})
	}
	sortEntries(entries,
		func(e TwitterEntry) time.Time { return e.Date.Time },
		func(e TwitterEntry) string { return e.ID })
	return entries
}

// devTweet is the subset of a timeline tweet the merge needs.
type devTweet struct {
	id         string
	published  time.Time
	retweet    bool
	mention    string
	referenced string
}

// twitterRun holds the state of one Scrape call. mu guards next.
type twitterRun struct {
	*TwitterSource
	token   string
	old     TwitterContent
	mu      sync.Mutex
	next    TwitterContent
	tally   Tally
	aliases singleflight.Group
}

func (r *twitterRun) page(ctx context.Context, cursor string) (Page[devTweet], error) {
	q := url.Values{}
	q.Set("max_results", fmt.Sprint(twitterPageSize))
	q.Set("tweet.fields", "created_at,entities,referenced_tweets")
	if cursor != "" {
		q.Set("pagination_token", cursor)
	}

	var resp twitterTimeline
	if err := r.get(ctx, fmt.Sprintf("%s/2/users/%s/tweets?%s", r.apiBase, r.accountID, q.Encode()), &resp); err != nil {
		return Page[devTweet]{}, err
	}

	items := make([]devTweet, 0, len(resp.Data))
	for _, tw := range resp.Data {
		if tw.ID == "" {
			return Page[devTweet]{}, fmt.Errorf("timeline tweet without id: %w", ErrIdentity)
		}
		published, err := snapshot.ParseTime(tw.CreatedAt)
		if err != nil {
			return Page[devTweet]{}, fmt.Errorf("tweet %s: %w", tw.ID, err)
		}
		dt := devTweet{
			id:        tw.ID,
			published: published,
			retweet:   strings.HasPrefix(tw.Text, "RT @"),
		}
		if len(tw.Entities.Mentions) > 0 {
			dt.mention = tw.Entities.Mentions[0].ID
		}
		if len(tw.ReferencedTweets) > 0 {
			dt.referenced = tw.ReferencedTweets[0].ID
		}
		items = append(items, dt)
	}
	return Page[devTweet]{Items: items, Next: resp.Meta.NextToken}, nil
}

func (r *twitterRun) process(ctx context.Context, tw devTweet) (Outcome, error) {
	var o Outcome

	r.mu.Lock()
	r.next.Tweets[tw.id] = snapshot.At(tw.published)
	if known(r.old.Tweets, tw.id) {
		carry(r.next.Authors, r.old.Authors, tw.id)
		carry(r.next.EmbedCodes, r.old.EmbedCodes, tw.id)
		o.Inherited = true
	}
	author, hasAuthor := r.next.Authors[tw.id]
	_, hasEmbed := r.next.EmbedCodes[tw.id]
	r.mu.Unlock()

	var authorNew, aliasNew, embedNew bool
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if !hasAuthor {
			id, err := r.resolveAuthor(gctx, tw)
			if err != nil {
				return err
			}
			if id == "" {
				return nil
			}
			author = id
			r.mu.Lock()
			authorNew = fill(r.next.Authors, tw.id, id)
			r.mu.Unlock()
		}

		r.mu.Lock()
		carry(r.next.AuthorAliases, r.old.AuthorAliases, author)
		_, hasAlias := r.next.AuthorAliases[author]
		r.mu.Unlock()
		if hasAlias {
			return nil
		}

		alias, err := r.alias(gctx, author)
		if err != nil {
			return err
		}
		r.mu.Lock()
		aliasNew = fill(r.next.AuthorAliases, author, alias)
		r.mu.Unlock()
		return nil
	})

	if !hasEmbed {
		g.Go(func() error {
			html, err := r.embedCode(gctx, tw.id)
			if err != nil {
				return err
			}
			r.mu.Lock()
			embedNew = fill(r.next.EmbedCodes, tw.id, html)
			r.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return o, err
	}
	o.NewInformation = authorNew || aliasNew || embedNew
	return o, nil
}

// resolveAuthor picks the author id of a tweet: the account itself for
// original tweets, else the first mention, else the referenced tweet's
// author. An empty id with a nil error means the referenced tweet no longer
// resolves and the author stays unset until a later run.
func (r *twitterRun) resolveAuthor(ctx context.Context, tw devTweet) (string, error) {
	switch {
	case !tw.retweet:
		return r.accountID, nil
	case tw.mention != "":
		return tw.mention, nil
	case tw.referenced != "":
		var resp struct {
			Data struct {
				AuthorID string `json:"author_id"`
			} `json:"data"`
		}
		u := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=author_id", r.apiBase, url.PathEscape(tw.referenced))
		if err := r.get(ctx, u, &resp); err != nil {
			return "", fmt.Errorf("referenced tweet %s: %w", tw.referenced, err)
		}
		return resp.Data.AuthorID, nil
	default:
		return "", fmt.Errorf("tweet %s: could not find author: %w", tw.id, ErrIdentity)
	}
}

func (r *twitterRun) alias(ctx context.Context, authorID string) (string, error) {
	v, err, _ := r.aliases.Do(authorID, func() (any, error) {
		var resp struct {
			Data struct {
				Name     string `json:"name"`
				Username string `json:"username"`
			} `json:"data"`
		}
		if err := r.get(ctx, fmt.Sprintf("%s/2/users/%s", r.apiBase, url.PathEscape(authorID)), &resp); err != nil {
			return "", fmt.Errorf("user %s: %w", authorID, err)
		}
		if resp.Data.Username == "" {
			return "", nil
		}
		return DisplayName(resp.Data.Username, resp.Data.Name), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *twitterRun) embedCode(ctx context.Context, tweetID string) (string, error) {
	q := url.Values{}
	q.Set("url", fmt.Sprintf("https://twitter.com/%s/status/%s", r.handle, tweetID))
	q.Set("partner", "")
	q.Set("hide_thread", "true")

	req, err := newGet(ctx, r.oembedBase+"/oembed?"+q.Encode())
	if err != nil {
		return "", err
	}
	var resp struct {
		HTML string `json:"html"`
	}
	if err := getJSON(r.client, req, &resp); err != nil {
		return "", fmt.Errorf("oembed %s: %w", tweetID, err)
	}
	return resp.HTML, nil
}

func (r *twitterRun) get(ctx context.Context, u string, v any) error {
	req, err := newGet(ctx, u)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	return getJSON(r.client, req, v)
}

// DisplayName renders a Twitter account for the news page. Riot and League
// accounts are shown by their in-house name, everyone else as "Name (@user)".
func DisplayName(username, name string) string {
	for _, kw := range twitterAuthorKeywords {
		if strings.Contains(strings.ToLower(name), kw) {
			return riotName(name, name)
		}
	}
	for _, kw := range twitterAuthorKeywords {
		if strings.Contains(strings.ToLower(username), kw) {
			return riotName(username, "@"+username)
		}
	}
	return fmt.Sprintf("%s (@%s)", name, username)
}

func riotName(name, fallback string) string {
	if strings.HasPrefix(strings.ToLower(name), "riot") {
		return "Riot " + strings.TrimSpace(name[len("riot"):])
	}
	return fallback
}

// embedText extracts the tweet text from oEmbed markup.
func embedText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("blockquote p").First().Text())
}

type twitterTimeline struct {
	Data []twitterTweet `json:"data"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

type twitterTweet struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Entities  struct {
		Mentions []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"mentions"`
	} `json:"entities"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}
