package handler

import (
	"context"
	"encoding/xml"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/blogman/internal/model"
)

// feedTitle はRSSフィードのチャンネル名。
const feedTitle = "Blog"

// RecentPostLister は新着記事を取得するインターフェース。
type RecentPostLister interface {
	ListRecentPosts(ctx context.Context, limit int) ([]model.PostWithAuthor, error)
}

// FeedHandler は新着記事のRSS 2.0フィードを配信する。
type FeedHandler struct {
	posts   RecentPostLister
	baseURL string
	limit   int
}

// NewFeedHandler はFeedHandlerを生成する。
// baseURLは記事リンクの絶対URLを組み立てるために使う。
func NewFeedHandler(posts RecentPostLister, baseURL string, limit int) *FeedHandler {
	return &FeedHandler{
		posts:   posts,
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
	}
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	GUID        rssGUID `xml:"guid"`
	Author      string  `xml:"author,omitempty"`
	Description string  `xml:"description"`
	PubDate     string  `xml:"pubDate"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Feed は新着記事をRSS 2.0形式で返す。
// GET /feed.xml
func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListRecentPosts(r.Context(), h.limit)
	if err != nil {
		slog.Error("failed to list recent posts for feed",
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	doc := rssDocument{
		Version: "2.0",
		Channel: rssChannel{
			Title:       feedTitle,
			Link:        h.baseURL + "/",
			Description: "Latest posts",
			Items:       make([]rssItem, 0, len(posts)),
		},
	}
	if len(posts) > 0 {
		doc.Channel.LastBuildDate = posts[0].CreatedAt.UTC().Format(time.RFC1123Z)
	}
	for _, p := range posts {
		link := h.baseURL + "/post/" + p.ID
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:       p.Title,
			Link:        link,
			GUID:        rssGUID{IsPermaLink: true, Value: link},
			Author:      p.AuthorUsername,
			Description: p.Content,
			PubDate:     p.CreatedAt.UTC().Format(time.RFC1123Z),
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		slog.Error("failed to encode feed", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	w.Write(out)
}
