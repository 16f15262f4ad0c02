package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/leaguenews/internal/config"
	"github.com/ppiankov/leaguenews/internal/snapshot"
)

const (
	redditSourceName = "league_dev_reddit"
	redditAuthURL    = "https://www.reddit.com"
	redditBaseURL    = "https://oauth.reddit.com"
	redditUserAgent  = "linux:leaguenews:1.0 (by /u/leaguenews)"
	redditRateLimit  = 600 * time.Millisecond
	redditPageSize   = 100
	redditWalkLimit  = 4
)

// RedditContent is the developer-comment snapshot.
type RedditContent struct {
	Comments   map[string]snapshot.Time `json:"comments"`
	Parents    map[string]string        `json:"parents"` // absent for top-level comments
	Posts      map[string]string        `json:"posts"`
	Authors    map[string]string        `json:"authors"`
	Subreddit  map[string]string        `json:"subreddit"`
	StaffUsers map[string]snapshot.Time `json:"staffUsers"` // last sighting per user
}

// RedditEntry is one published developer comment.
type RedditEntry struct {
	ID        string        `json:"id"`
	Date      snapshot.Time `json:"date"`
	Author    string        `json:"author,omitempty"`
	Subreddit string        `json:"subreddit,omitempty"`
	Post      string        `json:"post,omitempty"`
	Parent    string        `json:"parent,omitempty"`
}

// RedditSource discovers staff accounts by flair in one community and walks
// each account's comment history.
type RedditSource struct {
	community   string
	flair       string
	communities []*regexp.Regexp
	window      time.Duration
	maxPages    int
	client      *http.Client
	authURL     string
	baseURL     string
	now         func() time.Time
	log         *log.Logger
}

// NewReddit creates the developer-comment scraper from its source config.
func NewReddit(cfg config.RedditConfig, logger *log.Logger) (*RedditSource, error) {
	if strings.TrimSpace(cfg.Community) == "" {
		return nil, errors.New("reddit: community is required")
	}
	if strings.TrimSpace(cfg.StaffFlair) == "" {
		return nil, errors.New("reddit: staff flair is required")
	}
	patterns, err := config.CompilePatterns(cfg.Communities)
	if err != nil {
		return nil, fmt.Errorf("reddit: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RedditSource{
		community:   cfg.Community,
		flair:       strings.ToLower(cfg.StaffFlair),
		communities: patterns,
		window:      cfg.DiscoveryWindow.Duration,
		maxPages:    cfg.DiscoveryPages,
		client:      newHTTPClient(redditRateLimit, redditUserAgent),
		authURL:     redditAuthURL,
		baseURL:     redditBaseURL,
		now:         time.Now,
		log:         logger,
	}, nil
}

func (rs *RedditSource) Name() string {
	return redditSourceName
}

func (rs *RedditSource) InitContent() RedditContent {
	return RedditContent{
		Comments:   map[string]snapshot.Time{},
		Parents:    map[string]string{},
		Posts:      map[string]string{},
		Authors:    map[string]string{},
		Subreddit:  map[string]string{},
		StaffUsers: map[string]snapshot.Time{},
	}
}

func (rs *RedditSource) Scrape(ctx context.Context, old RedditContent, opts Options) (Result[RedditContent], error) {
	token, err := rs.token(ctx, opts.Credentials.Reddit)
	if err != nil {
		return Result[RedditContent]{}, fmt.Errorf("reddit: %w", err)
	}

	run := &redditRun{RedditSource: rs, token: token, old: old, next: rs.InitContent()}

	for name, seen := range old.StaffUsers {
		if !seen.Before(opts.MaxAge) {
			run.next.StaffUsers[name] = seen
		}
	}

	found, err := run.discover(ctx, rs.discoveryBound(old))
	if err != nil {
		return Result[RedditContent]{}, fmt.Errorf("reddit: discover staff: %w", err)
	}
	for name, seen := range found {
		if prev, ok := run.next.StaffUsers[name]; !ok || seen.After(prev.Time) {
			run.next.StaffUsers[name] = snapshot.At(seen)
		}
	}
	rs.log.Debug("staff accounts", "discovered", len(found), "tracked", len(run.next.StaffUsers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(redditWalkLimit)
	for name := range run.next.StaffUsers {
		name := name
		g.Go(func() error {
			walk := Walk[redditComment]{
				Fetch:      run.userPage(name),
				Published:  redditComment.published,
				MaxAge:     opts.MaxAge,
				MaxEntries: opts.MaxEntries,
			}
			_, err := walk.Run(gctx, run.visit)
			if err != nil {
				return fmt.Errorf("u/%s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result[RedditContent]{}, fmt.Errorf("reddit: %w", err)
	}

	return Result[RedditContent]{
		Content:        run.next,
		NewEntries:     run.tally.New,
		UpdatedEntries: run.tally.Updated,
		TotalEntries:   run.tally.Total,
	}, nil
}

func (rs *RedditSource) Compress(content RedditContent) []RedditEntry {
	entries := make([]RedditEntry, 0, len(content.Comments))
	for id, date := range content.Comments {
		entries = append(entries, RedditEntry{
			ID:        id,
			Date:      date,
			Author:    content.Authors[id],
			Subreddit: content.Subreddit[id],
			Post:      content.Posts[id],
			Parent:    content.Parents[id],
		})
	}
	sortEntries(entries,
		func(e RedditEntry) time.Time { return e.Date.Time },
		func(e RedditEntry) string { return e.ID })
	return entries
}

// discoveryBound is the age at which staff discovery stops paging: the latest
// comment already stored, or the discovery window when there is no history.
func (rs *RedditSource) discoveryBound(old RedditContent) time.Time {
	var latest time.Time
	for _, t := range old.Comments {
		if t.After(latest) {
			latest = t.Time
		}
	}
	if latest.IsZero() {
		return rs.now().Add(-rs.window)
	}
	return latest
}

// token exchanges the app credentials for a bearer token. Real account
// credentials select the password grant.
func (rs *RedditSource) token(ctx context.Context, creds config.RedditCredentials) (string, error) {
	if config.Placeholder(creds.ClientID) || config.Placeholder(creds.ClientSecret) {
		return "", errors.New("client id and secret are not configured")
	}

	form := url.Values{}
	if !config.Placeholder(creds.Username) && !config.Placeholder(creds.Password) {
		form.Set("grant_type", "password")
		form.Set("username", creds.Username)
		form.Set("password", creds.Password)
	} else {
		form.Set("grant_type", "client_credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rs.authURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)

	var resp struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := getJSON(rs.client, req, &resp); err != nil {
		return "", fmt.Errorf("access token: %w", err)
	}
	if resp.AccessToken == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("access token: %s", resp.Error)
		}
		return "", errors.New("access token: empty response")
	}
	return resp.AccessToken, nil
}

// redditRun holds the state of one Scrape call. mu guards next.
type redditRun struct {
	*RedditSource
	token string
	old   RedditContent
	mu    sync.Mutex
	next  RedditContent
	tally Tally
}

// discover pages the community's newest comments collecting flaired authors
// and their latest sighting.
func (r *redditRun) discover(ctx context.Context, bound time.Time) (map[string]time.Time, error) {
	found := map[string]time.Time{}
	cursor := ""
	for page := 0; r.maxPages <= 0 || page < r.maxPages; page++ {
		listing, err := r.listing(ctx, fmt.Sprintf("/r/%s/comments", url.PathEscape(r.community)), cursor, page*redditPageSize)
		if err != nil {
			return nil, err
		}
		if len(listing) == 0 {
			break
		}

		for _, c := range listing {
			if !strings.Contains(strings.ToLower(c.AuthorFlairText), r.flair) || c.Author == "" {
				continue
			}
			seen := c.published()
			if prev, ok := found[c.Author]; !ok || seen.After(prev) {
				found[c.Author] = seen
			}
		}

		last := listing[len(listing)-1]
		if last.published().Before(bound) || last.Name == "" || last.Name == cursor {
			break
		}
		cursor = last.Name
	}
	return found, nil
}

func (r *redditRun) userPage(name string) PageFunc[redditComment] {
	count := 0
	return func(ctx context.Context, cursor string) (Page[redditComment], error) {
		items, err := r.listing(ctx, fmt.Sprintf("/user/%s/comments", url.PathEscape(name)), cursor, count)
		if err != nil {
			return Page[redditComment]{}, err
		}
		count += len(items)
		var next string
		if len(items) > 0 {
			next = items[len(items)-1].Name
		}
		return Page[redditComment]{Items: items, Next: next}, nil
	}
}

func (r *redditRun) listing(ctx context.Context, path, after string, count int) ([]redditComment, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(redditPageSize))
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
		q.Set("count", fmt.Sprint(count))
	}

	req, err := newGet(ctx, r.baseURL+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	var listing redditListing
	if err := getJSON(r.client, req, &listing); err != nil {
		return nil, err
	}

	comments := make([]redditComment, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		comments = append(comments, child.Data)
	}
	return comments, nil
}

// visit merges one comment. Comments outside the allowed communities are
// skipped and do not count towards the entry limit.
func (r *redditRun) visit(c redditComment) (bool, error) {
	if !r.allowed(c.Subreddit) {
		return false, nil
	}

	id := c.identity()
	if id == "" {
		return false, fmt.Errorf("comment without id or name: %w", ErrIdentity)
	}
	post := thingID(c.LinkID)
	parent := thingID(c.ParentID)

	var o Outcome

	r.mu.Lock()
	r.next.Comments[id] = snapshot.At(c.published())
	if known(r.old.Comments, id) {
		carry(r.next.Authors, r.old.Authors, id)
		carry(r.next.Subreddit, r.old.Subreddit, id)
		carry(r.next.Posts, r.old.Posts, id)
		carry(r.next.Parents, r.old.Parents, id)
		o.Inherited = true
	}
	filled := fill(r.next.Authors, id, c.Author)
	filled = fill(r.next.Subreddit, id, c.Subreddit) || filled
	filled = fill(r.next.Posts, id, post) || filled
	if parent != post {
		filled = fill(r.next.Parents, id, parent) || filled
	}
	r.mu.Unlock()

	o.NewInformation = filled
	r.tally.Add(o)
	return true, nil
}

func (r *redditRun) allowed(subreddit string) bool {
	for _, re := range r.communities {
		if re.MatchString(subreddit) {
			return true
		}
	}
	return false
}

// thingID strips the type prefix from a fullname like "t3_abc".
func thingID(fullname string) string {
	if _, id, ok := strings.Cut(fullname, "_"); ok {
		return id
	}
	return fullname
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditComment `json:"data"`
}

type redditComment struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Author          string  `json:"author"`
	AuthorFlairText string  `json:"author_flair_text"`
	Subreddit       string  `json:"subreddit"`
	LinkID          string  `json:"link_id"`
	ParentID        string  `json:"parent_id"`
	CreatedUTC      float64 `json:"created_utc"`
}

func (c redditComment) published() time.Time {
	sec := int64(c.CreatedUTC)
	nsec := int64((c.CreatedUTC - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func (c redditComment) identity() string {
	if c.ID != "" {
		return c.ID
	}
	return strings.TrimPrefix(c.Name, "t1_")
}

