// Package discover finds streaming manifests and media files referenced
// by a web page.
package discover

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mohaanymo/streamprobe/internal/httpclient"
	"github.com/mohaanymo/streamprobe/internal/urlnorm"
)

// Kind of a discovered candidate.
type Kind string

const (
	KindHLS    Kind = "hls"
	KindDASH   Kind = "dash"
	KindDirect Kind = "direct"
)

// Candidate is a media URL found on a page.
type Candidate struct {
	URL           string `json:"url"`
	NormalizedURL string `json:"normalizedUrl"`
	Kind          Kind   `json:"kind"`
	MimeType      string `json:"mimeType,omitempty"`
	Source        string `json:"source"`
}

var (
	directExts = map[string]bool{
		".mp4": true, ".m4v": true, ".m4a": true, ".mov": true, ".webm": true,
		".mkv": true, ".mp3": true, ".aac": true, ".ogg": true, ".ts": true,
	}
	scriptURLRe = regexp.MustCompile(`(?i)(?:https?:)?//[^\s"'<>\\]+?\.(?:m3u8|mpd)(?:\?[^\s"'<>\\]*)?|["'](/[^\s"'<>\\]+?\.(?:m3u8|mpd)(?:\?[^\s"'<>\\]*)?)["']`)
)

// FromHTML scans an HTML document for media references. URLs are resolved
// against pageURL, de-duplicated by normalized form and returned in
// document order. Links to ordinary pages are ignored.
func FromHTML(pageURL string, r io.Reader) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("discover: parse html: %w", err)
	}

	base, _ := url.Parse(pageURL)
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && base != nil {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	c := collector{base: base, seen: make(map[string]bool)}

	doc.Find("video[src], audio[src], source[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		mime, _ := s.Attr("type")
		c.add(src, mime, goquery.NodeName(s), true)
	})
	doc.Find(`meta[property^="og:video"], meta[property^="og:audio"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		if strings.HasSuffix(prop, ":type") || strings.HasSuffix(prop, ":width") || strings.HasSuffix(prop, ":height") {
			return
		}
		content, _ := s.Attr("content")
		c.add(content, "", "meta", true)
	})
	doc.Find("a[href], link[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		mime, _ := s.Attr("type")
		c.add(href, mime, goquery.NodeName(s), false)
	})
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := strings.ReplaceAll(s.Text(), `\/`, "/")
		for _, m := range scriptURLRe.FindAllStringSubmatch(text, -1) {
			raw := m[0]
			if m[1] != "" {
				raw = m[1]
			}
			c.add(raw, "", "script", false)
		}
	})
	return c.out, nil
}

type collector struct {
	base *url.URL
	seen map[string]bool
	out  []Candidate
}

// add records ref if it looks like media. Elements that only ever point
// at media (video, source, og:video) are accepted without an extension.
func (c *collector) add(ref, mime, source string, mediaElement bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "blob:") || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return
	}
	abs := ref
	if c.base != nil {
		u, err := c.base.Parse(ref)
		if err != nil {
			return
		}
		abs = u.String()
	}
	if !strings.HasPrefix(abs, "http://") && !strings.HasPrefix(abs, "https://") {
		return
	}

	kind, ok := classify(abs, mime)
	if !ok {
		if !mediaElement {
			return
		}
		kind = KindDirect
	}

	norm := urlnorm.Normalize(abs)
	if c.seen[norm] {
		return
	}
	c.seen[norm] = true
	c.out = append(c.out, Candidate{URL: abs, NormalizedURL: norm, Kind: kind, MimeType: mime, Source: source})
}

func classify(rawURL, mime string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "application/x-mpegurl", "application/vnd.apple.mpegurl", "audio/mpegurl", "audio/x-mpegurl":
		return KindHLS, true
	case "application/dash+xml":
		return KindDASH, true
	}

	lower := strings.ToLower(rawURL)
	path := lower
	if u, err := url.Parse(lower); err == nil {
		path = u.Path
	}
	switch {
	case strings.HasSuffix(path, ".m3u8") || strings.Contains(lower, "format=m3u8"):
		return KindHLS, true
	case strings.HasSuffix(path, ".mpd") || strings.Contains(lower, "format=mpd"):
		return KindDASH, true
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 && directExts[path[i:]] {
		return KindDirect, true
	}
	if strings.HasPrefix(strings.ToLower(mime), "video/") || strings.HasPrefix(strings.ToLower(mime), "audio/") {
		return KindDirect, true
	}
	return "", false
}

// PageFetcher is the part of httpclient.Fetcher discovery needs.
type PageFetcher interface {
	FetchFull(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) httpclient.FetchResult
}

// Page downloads pageURL and scans it.
func Page(ctx context.Context, f PageFetcher, pageURL string, headers map[string]string) ([]Candidate, error) {
	res := f.FetchFull(ctx, pageURL, headers, httpclient.DefaultFullTimeout)
	if !res.OK {
		return nil, fmt.Errorf("discover %s: %w", pageURL, res.Err())
	}
	return FromHTML(pageURL, strings.NewReader(res.Content))
}
