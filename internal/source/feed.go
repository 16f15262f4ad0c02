package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// fetchFeed reads a YouTube Atom feed into playlist videos.
func fetchFeed(ctx context.Context, client *http.Client, feedURL string) ([]video, error) {
	fp := gofeed.NewParser()
	fp.Client = client
	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	return videosFromFeed(feed)
}

func videosFromFeed(feed *gofeed.Feed) ([]video, error) {
	videos := make([]video, 0, len(feed.Items))
	for _, item := range feed.Items {
		published := itemPublishedTime(item)
		if published.IsZero() {
			return nil, fmt.Errorf("feed item %q: missing published date", item.Title)
		}
		videos = append(videos, video{
			id:        itemVideoID(item),
			title:     strings.TrimSpace(item.Title),
			thumbnail: itemThumbnail(item),
			published: published.UTC(),
		})
	}
	return videos, nil
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

// itemVideoID prefers the yt:videoId element and falls back to the entry id.
func itemVideoID(item *gofeed.Item) string {
	if id := extValue(item.Extensions, "yt", "videoId"); id != "" {
		return id
	}
	return strings.TrimPrefix(item.GUID, "yt:video:")
}

func itemThumbnail(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	groups := item.Extensions["media"]["group"]
	if len(groups) == 0 {
		return ""
	}
	for _, th := range groups[0].Children["thumbnail"] {
		if u := th.Attrs["url"]; u != "" {
			return u
		}
	}
	return ""
}

func extValue(exts ext.Extensions, prefix, name string) string {
	for _, e := range exts[prefix][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}
