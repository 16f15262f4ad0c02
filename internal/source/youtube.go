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

	"github.com/ppiankov/leaguenews/internal/config"
	"github.com/ppiankov/leaguenews/internal/snapshot"
)

const (
	youtubeSourceName = "official_youtube"
	youtubeAPIBase    = "https://www.googleapis.com"
	youtubeFeedBase   = "https://www.youtube.com"
	youtubePageSize   = 50
	youtubeInterval   = 200 * time.Millisecond
)

// YouTubeContent is the channel upload snapshot.
type YouTubeContent struct {
	Videos     map[string]snapshot.Time `json:"videos"`
	Titles     map[string]string        `json:"titles"`
	Thumbnails map[string]string        `json:"thumbnails"`
}

// YouTubeEntry is one published video.
type YouTubeEntry struct {
	ID        string        `json:"id"`
	Date      snapshot.Time `json:"date"`
	Title     string        `json:"title,omitempty"`
	Thumbnail string        `json:"thumbnail,omitempty"`
}

// YouTubeSource walks an uploads playlist. Without an API key it reads the
// playlist's public feed, which only carries the newest videos.
type YouTubeSource struct {
	playlistID string
	client     *http.Client
	apiBase    string
	feedBase   string
}

// NewYouTube creates the video scraper for playlistID.
func NewYouTube(playlistID string) (*YouTubeSource, error) {
	if strings.TrimSpace(playlistID) == "" {
		return nil, errors.New("youtube: playlist id is required")
	}
	return &YouTubeSource{
		playlistID: playlistID,
		client:     newHTTPClient(youtubeInterval, userAgent),
		apiBase:    youtubeAPIBase,
		feedBase:   youtubeFeedBase,
	}, nil
}

func (ys *YouTubeSource) Name() string {
	return youtubeSourceName
}

func (ys *YouTubeSource) InitContent() YouTubeContent {
	return YouTubeContent{
		Videos:     map[string]snapshot.Time{},
		Titles:     map[string]string{},
		Thumbnails: map[string]string{},
	}
}

func (ys *YouTubeSource) Scrape(ctx context.Context, old YouTubeContent, opts Options) (Result[YouTubeContent], error) {
	fetch := ys.feedPage
	if key := opts.Credentials.YouTube.APIKey; !config.Placeholder(key) {
		fetch = ys.apiPage(key)
	}

	next := ys.InitContent()
	var (
		mu    sync.Mutex
		tally Tally
	)

	walk := Walk[video]{
		Fetch:      fetch,
		Published:  func(v video) time.Time { return v.published },
		MaxAge:     opts.MaxAge,
		MaxEntries: opts.MaxEntries,
	}
	_, err := walk.Run(ctx, func(v video) (bool, error) {
		if v.id == "" {
			return false, fmt.Errorf("playlist item %q: %w", v.title, ErrIdentity)
		}

		var o Outcome
		mu.Lock()
		defer mu.Unlock()

		next.Videos[v.id] = snapshot.At(v.published)
		if known(old.Videos, v.id) {
			carry(next.Titles, old.Titles, v.id)
			carry(next.Thumbnails, old.Thumbnails, v.id)
			o.Inherited = true
		}
		filled := fill(next.Titles, v.id, v.title)
		filled = fill(next.Thumbnails, v.id, v.thumbnail) || filled

		o.NewInformation = filled
		tally.Add(o)
		return true, nil
	})
	if err != nil {
		return Result[YouTubeContent]{}, fmt.Errorf("youtube: %w", err)
	}

	return Result[YouTubeContent]{
		Content:        next,
		NewEntries:     tally.New,
		UpdatedEntries: tally.Updated,
		TotalEntries:   tally.Total,
	}, nil
}

func (ys *YouTubeSource) Compress(content YouTubeContent) []YouTubeEntry {
	entries := make([]YouTubeEntry, 0, len(content.Videos))
	for id, date := range content.Videos {
		entries = append(entries, YouTubeEntry{
			ID:        id,
			Date:      date,
			Title:     content.Titles[id],
			Thumbnail: content.Thumbnails[id],
		})
	}
	sortEntries(entries,
		func(e YouTubeEntry) time.Time { return e.Date.Time },
		func(e YouTubeEntry) string { return e.ID })
	return entries
}

// video is one playlist item in either representation.
type video struct {
	id        string
	title     string
	thumbnail string
	published time.Time
}

func (ys *YouTubeSource) apiPage(key string) PageFunc[video] {
	return func(ctx context.Context, cursor string) (Page[video], error) {
		q := url.Values{}
		q.Set("part", "snippet,contentDetails")
		q.Set("playlistId", ys.playlistID)
		q.Set("maxResults", fmt.Sprint(youtubePageSize))
		q.Set("key", key)
		if cursor != "" {
			q.Set("pageToken", cursor)
		}

		req, err := newGet(ctx, ys.apiBase+"/youtube/v3/playlistItems?"+q.Encode())
		if err != nil {
			return Page[video]{}, err
		}
		var resp playlistItemsResponse
		if err := getJSON(ys.client, req, &resp); err != nil {
			return Page[video]{}, err
		}

		items := make([]video, 0, len(resp.Items))
		for _, it := range resp.Items {
			published, err := snapshot.ParseTime(it.Snippet.PublishedAt)
			if err != nil {
				return Page[video]{}, fmt.Errorf("playlist item %s: %w", it.ID, err)
			}
			items = append(items, video{
				id:        it.videoID(),
				title:     it.Snippet.Title,
				thumbnail: it.Snippet.Thumbnails.best(),
				published: published,
			})
		}
		return Page[video]{Items: items, Next: resp.NextPageToken}, nil
	}
}

func (ys *YouTubeSource) feedPage(ctx context.Context, _ string) (Page[video], error) {
	u := ys.feedBase + "/feeds/videos.xml?playlist_id=" + url.QueryEscape(ys.playlistID)
	items, err := fetchFeed(ctx, ys.client, u)
	if err != nil {
		return Page[video]{}, err
	}
	return Page[video]{Items: items}, nil
}

type playlistItemsResponse struct {
	NextPageToken string         `json:"nextPageToken"`
	Items         []playlistItem `json:"items"`
}

type playlistItem struct {
	ID      string `json:"id"`
	Snippet struct {
		PublishedAt string     `json:"publishedAt"`
		Title       string     `json:"title"`
		Thumbnails  thumbnails `json:"thumbnails"`
		ResourceID  struct {
			VideoID string `json:"videoId"`
		} `json:"resourceId"`
	} `json:"snippet"`
	ContentDetails struct {
		VideoID string `json:"videoId"`
	} `json:"contentDetails"`
}

func (it playlistItem) videoID() string {
	switch {
	case it.Snippet.ResourceID.VideoID != "":
		return it.Snippet.ResourceID.VideoID
	case it.ContentDetails.VideoID != "":
		return it.ContentDetails.VideoID
	default:
		return it.ID
	}
}

type thumbnail struct {
	URL string `json:"url"`
}

type thumbnails struct {
	Default  thumbnail `json:"default"`
	Medium   thumbnail `json:"medium"`
	High     thumbnail `json:"high"`
	Standard thumbnail `json:"standard"`
	Maxres   thumbnail `json:"maxres"`
}

// best returns the largest available thumbnail.
func (t thumbnails) best() string {
	for _, th := range []thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th.URL != "" {
			return th.URL
		}
	}
	return ""
}
