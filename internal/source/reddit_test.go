package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/leaguenews/internal/config"
	"github.com/ppiankov/leaguenews/internal/snapshot"
)

var redditNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	return string(b)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func makeListing(comments ...redditComment) redditListing {
	var l redditListing
	for _, c := range comments {
		l.Data.Children = append(l.Data.Children, redditChild{Data: c})
	}
	return l
}

func comment(id, author, sub, link, parent string, age time.Duration) redditComment {
	return redditComment{
		ID:         id,
		Name:       "t1_" + id,
		Author:     author,
		Subreddit:  sub,
		LinkID:     link,
		ParentID:   parent,
		CreatedUTC: float64(redditNow.Add(-age).Unix()),
	}
}

func flaired(c redditComment, flair string) redditComment {
	c.AuthorFlairText = flair
	return c
}

func redditCreds() config.Credentials {
	return config.Credentials{Reddit: config.RedditCredentials{ClientID: "id", ClientSecret: "secret"}}
}

func redditConfig() config.RedditConfig {
	return config.RedditConfig{
		Community:       "leagueoflegends",
		StaffFlair:      ":riot:",
		Communities:     config.DefaultCommunities,
		DiscoveryWindow: config.Duration{Duration: 7 * 24 * time.Hour},
		DiscoveryPages:  3,
	}
}

// fakeReddit serves the token endpoint, one page of community comments and
// one page of comments per user. Paged requests return empty listings.
type fakeReddit struct {
	t         *testing.T
	community []redditComment
	users     map[string][]redditComment
	failUser  string

	mu     sync.Mutex
	grants []string
	paths  []string
}

func (f *fakeReddit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()

	if r.URL.Path == "/api/v1/access_token" {
		if user, pass, ok := r.BasicAuth(); !ok || user != "id" || pass != "secret" {
			http.Error(w, "bad auth", http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		f.mu.Lock()
		f.grants = append(f.grants, r.PostForm.Get("grant_type"))
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"access_token":"tok"}`)
		return
	}

	if r.Header.Get("Authorization") != "Bearer tok" {
		http.Error(w, "no token", http.StatusUnauthorized)
		return
	}
	if r.URL.Query().Get("after") != "" {
		_, _ = io.WriteString(w, mustJSON(f.t, makeListing()))
		return
	}

	switch {
	case r.URL.Path == "/r/leagueoflegends/comments":
		_, _ = io.WriteString(w, mustJSON(f.t, makeListing(f.community...)))
	case strings.HasPrefix(r.URL.Path, "/user/"):
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/user/"), "/comments")
		if name == f.failUser {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, mustJSON(f.t, makeListing(f.users[name]...)))
	default:
		http.NotFound(w, r)
	}
}

func newTestReddit(t *testing.T, fake *fakeReddit) *RedditSource {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	rs, err := NewReddit(redditConfig(), nil)
	if err != nil {
		t.Fatalf("new reddit: %v", err)
	}
	rs.client = srv.Client()
	rs.authURL = srv.URL
	rs.baseURL = srv.URL
	rs.now = func() time.Time { return redditNow }
	return rs
}

func redditOpts() Options {
	return Options{
		MaxEntries:  100,
		MaxAge:      redditNow.Add(-30 * 24 * time.Hour),
		Credentials: redditCreds(),
	}
}

func TestNewReddit_Validation(t *testing.T) {
	cfg := redditConfig()
	cfg.Community = ""
	if _, err := NewReddit(cfg, nil); err == nil {
		t.Error("expected error for empty community")
	}

	cfg = redditConfig()
	cfg.StaffFlair = " "
	if _, err := NewReddit(cfg, nil); err == nil {
		t.Error("expected error for empty flair")
	}

	cfg = redditConfig()
	cfg.Communities = []string{"("}
	if _, err := NewReddit(cfg, nil); err == nil {
		t.Error("expected error for bad community pattern")
	}
}

func TestRedditSource_Name(t *testing.T) {
	rs, _ := NewReddit(redditConfig(), nil)
	if rs.Name() != "league_dev_reddit" {
		t.Errorf("name = %q, want league_dev_reddit", rs.Name())
	}
}

func TestReddit_Scrape(t *testing.T) {
	fake := &fakeReddit{
		community: []redditComment{
			flaired(comment("d1", "Riot_Dev", "leagueoflegends", "t3_p1", "t3_p1", time.Hour), ":riot: Designer"),
			comment("x1", "someone", "leagueoflegends", "t3_p1", "t1_d1", 2*time.Hour),
		},
		users: map[string][]redditComment{
			"Riot_Dev": {
				comment("c1", "Riot_Dev", "leagueoflegends", "t3_p1", "t3_p1", time.Hour),
				comment("c2", "Riot_Dev", "summonerschool", "t3_p2", "t1_q9", 3*time.Hour),
				comment("c3", "Riot_Dev", "AskReddit", "t3_p3", "t3_p3", 4*time.Hour),
			},
		},
	}
	rs := newTestReddit(t, fake)

	res, err := rs.Scrape(context.Background(), rs.InitContent(), redditOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.NewEntries != 2 || res.TotalEntries != 2 {
		t.Errorf("new = %d, total = %d, want 2 and 2", res.NewEntries, res.TotalEntries)
	}
	c := res.Content
	if _, ok := c.Comments["c3"]; ok {
		t.Error("comment outside allowed communities was stored")
	}
	if _, ok := c.StaffUsers["someone"]; ok {
		t.Error("unflaired author tracked as staff")
	}
	if !c.StaffUsers["Riot_Dev"].Equal(redditNow.Add(-time.Hour)) {
		t.Errorf("staff sighting = %v", c.StaffUsers["Riot_Dev"])
	}
	if c.Posts["c1"] != "p1" || c.Subreddit["c1"] != "leagueoflegends" || c.Authors["c1"] != "Riot_Dev" {
		t.Errorf("c1 attributes = %q %q %q", c.Posts["c1"], c.Subreddit["c1"], c.Authors["c1"])
	}
	if _, ok := c.Parents["c1"]; ok {
		t.Error("top-level comment should have no parent")
	}
	if c.Parents["c2"] != "q9" {
		t.Errorf("c2 parent = %q, want q9", c.Parents["c2"])
	}
	if fake.grants[0] != "client_credentials" {
		t.Errorf("grant = %q, want client_credentials", fake.grants[0])
	}
}

func TestReddit_InheritsKnownComments(t *testing.T) {
	fake := &fakeReddit{
		users: map[string][]redditComment{
			"Riot_Dev": {
				comment("c1", "Riot_Dev", "leagueoflegends", "t3_p1", "t3_p1", time.Hour),
				comment("c2", "Riot_Dev", "leagueoflegends", "t3_p1", "t1_c1", 2*time.Hour),
			},
		},
	}
	rs := newTestReddit(t, fake)

	old := rs.InitContent()
	old.Comments["c1"] = snapshot.At(redditNow.Add(-time.Hour))
	old.Authors["c1"] = "renamed"
	old.StaffUsers["Riot_Dev"] = snapshot.At(redditNow.Add(-24 * time.Hour))

	res, err := rs.Scrape(context.Background(), old, redditOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.NewEntries != 1 || res.TotalEntries != 2 {
		t.Errorf("new = %d, total = %d, want 1 and 2", res.NewEntries, res.TotalEntries)
	}
	if res.Content.Authors["c1"] != "renamed" {
		t.Errorf("stored author overwritten: %q", res.Content.Authors["c1"])
	}
	if res.Content.Posts["c1"] != "p1" {
		t.Errorf("missing attribute not filled: post = %q", res.Content.Posts["c1"])
	}
}

func TestReddit_DropsStaleStaff(t *testing.T) {
	fake := &fakeReddit{
		users: map[string][]redditComment{
			"stale": {comment("s1", "stale", "leagueoflegends", "t3_p", "t3_p", time.Hour)},
		},
	}
	rs := newTestReddit(t, fake)

	old := rs.InitContent()
	old.StaffUsers["stale"] = snapshot.At(redditNow.Add(-90 * 24 * time.Hour))

	res, err := rs.Scrape(context.Background(), old, redditOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Content.StaffUsers) != 0 || len(res.Content.Comments) != 0 {
		t.Errorf("stale staff still walked: %+v", res.Content)
	}
}

func TestReddit_MaxEntriesPerUser(t *testing.T) {
	fake := &fakeReddit{
		users: map[string][]redditComment{
			"a": {
				comment("a1", "a", "leagueoflegends", "t3_p", "t3_p", time.Hour),
				comment("a2", "a", "leagueoflegends", "t3_p", "t3_p", 2*time.Hour),
				comment("a3", "a", "leagueoflegends", "t3_p", "t3_p", 3*time.Hour),
			},
		},
	}
	rs := newTestReddit(t, fake)

	old := rs.InitContent()
	old.StaffUsers["a"] = snapshot.At(redditNow)
	opts := redditOpts()
	opts.MaxEntries = 2

	res, err := rs.Scrape(context.Background(), old, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalEntries != 2 {
		t.Errorf("total = %d, want 2", res.TotalEntries)
	}
	if _, ok := res.Content.Comments["a3"]; ok {
		t.Error("walk continued past max entries")
	}
}

func TestReddit_UserFailureFailsRun(t *testing.T) {
	fake := &fakeReddit{
		failUser: "broken",
		users: map[string][]redditComment{
			"ok": {comment("o1", "ok", "leagueoflegends", "t3_p", "t3_p", time.Hour)},
		},
	}
	rs := newTestReddit(t, fake)

	old := rs.InitContent()
	old.StaffUsers["ok"] = snapshot.At(redditNow)
	old.StaffUsers["broken"] = snapshot.At(redditNow)

	_, err := rs.Scrape(context.Background(), old, redditOpts())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("err = %v, want status 500", err)
	}
}

func TestReddit_PasswordGrant(t *testing.T) {
	fake := &fakeReddit{}
	rs := newTestReddit(t, fake)

	opts := redditOpts()
	opts.Credentials.Reddit.Username = "bot"
	opts.Credentials.Reddit.Password = "hunter2"

	if _, err := rs.Scrape(context.Background(), rs.InitContent(), opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.grants) != 1 || fake.grants[0] != "password" {
		t.Errorf("grants = %v, want [password]", fake.grants)
	}
}

func TestReddit_PlaceholderCredentials(t *testing.T) {
	rs, _ := NewReddit(redditConfig(), nil)
	rs.client = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		t.Fatal("unexpected request")
		return nil, nil
	})}

	opts := redditOpts()
	opts.Credentials = config.TemplateCredentials
	if _, err := rs.Scrape(context.Background(), rs.InitContent(), opts); err == nil {
		t.Fatal("expected error for template credentials")
	}
}

func TestReddit_TokenError(t *testing.T) {
	rs, _ := NewReddit(redditConfig(), nil)
	rs.authURL = "https://reddit.test"
	rs.client = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"error":"invalid_grant"}`), nil
	})}

	_, err := rs.Scrape(context.Background(), rs.InitContent(), redditOpts())
	if err == nil || !strings.Contains(err.Error(), "invalid_grant") {
		t.Fatalf("err = %v, want invalid_grant", err)
	}
}

func TestReddit_DiscoveryBound(t *testing.T) {
	rs, _ := NewReddit(redditConfig(), nil)
	rs.now = func() time.Time { return redditNow }

	empty := rs.InitContent()
	if got := rs.discoveryBound(empty); !got.Equal(redditNow.Add(-7 * 24 * time.Hour)) {
		t.Errorf("bound without history = %v", got)
	}

	old := rs.InitContent()
	old.Comments["a"] = snapshot.At(redditNow.Add(-5 * time.Hour))
	old.Comments["b"] = snapshot.At(redditNow.Add(-2 * time.Hour))
	if got := rs.discoveryBound(old); !got.Equal(redditNow.Add(-2 * time.Hour)) {
		t.Errorf("bound = %v, want latest comment", got)
	}
}

func TestRedditComment_Identity(t *testing.T) {
	tests := []struct {
		name string
		c    redditComment
		want string
	}{
		{"id", redditComment{ID: "abc", Name: "t1_zzz"}, "abc"},
		{"name fallback", redditComment{Name: "t1_abc"}, "abc"},
		{"none", redditComment{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.identity(); got != tt.want {
				t.Errorf("identity = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReddit_MissingIdentity(t *testing.T) {
	nameless := comment("", "a", "leagueoflegends", "t3_p", "t3_p", time.Hour)
	nameless.Name = ""
	fake := &fakeReddit{users: map[string][]redditComment{"a": {nameless}}}
	rs := newTestReddit(t, fake)

	old := rs.InitContent()
	old.StaffUsers["a"] = snapshot.At(redditNow)

	_, err := rs.Scrape(context.Background(), old, redditOpts())
	if !errors.Is(err, ErrIdentity) {
		t.Fatalf("err = %v, want ErrIdentity", err)
	}
}

func TestThingID(t *testing.T) {
	tests := map[string]string{
		"t3_abc": "abc",
		"t1_x_y": "x_y",
		"plain":  "plain",
		"":       "",
	}
	for in, want := range tests {
		if got := thingID(in); got != want {
			t.Errorf("thingID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReddit_Compress(t *testing.T) {
	rs, _ := NewReddit(redditConfig(), nil)
	c := rs.InitContent()
	c.Comments["late"] = snapshot.At(redditNow)
	c.Comments["early"] = snapshot.At(redditNow.Add(-time.Hour))
	c.Authors["late"] = "Riot_Dev"
	c.Parents["late"] = "early"

	entries := rs.Compress(c)
	if len(entries) != 2 || entries[0].ID != "early" || entries[1].ID != "late" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].Author != "Riot_Dev" || entries[1].Parent != "early" || entries[0].Parent != "" {
		t.Errorf("attributes = %+v", entries)
	}
}
