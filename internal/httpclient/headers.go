package httpclient

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultAccept         = "*/*"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
)

// TabContext is what is known about the page that referenced a URL.
type TabContext struct {
	PageURL string
}

// HeaderProvider supplies request headers for a URL.
type HeaderProvider interface {
	Headers(tab *TabContext, rawURL string) map[string]string
}

// DefaultHeaderProvider returns browser-like headers. Origin and Referer
// are only added when the tab context carries a usable page URL.
type DefaultHeaderProvider struct {
	UserAgent      string
	AcceptLanguage string
	Extra          map[string]string
}

// Headers implements HeaderProvider.
func (p DefaultHeaderProvider) Headers(tab *TabContext, rawURL string) map[string]string {
	h := map[string]string{
		"User-Agent":      firstNonEmpty(p.UserAgent, DefaultUserAgent),
		"Accept":          DefaultAccept,
		"Accept-Language": firstNonEmpty(p.AcceptLanguage, DefaultAcceptLanguage),
	}
	if tab != nil {
		if origin, referer, ok := pageOrigin(tab.PageURL); ok {
			h["Origin"] = origin
			h["Referer"] = referer
		}
	}
	for k, v := range p.Extra {
		h[k] = v
	}
	return h
}

func pageOrigin(pageURL string) (origin, referer string, ok bool) {
	if pageURL == "" {
		return "", "", false
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", false
	}
	u.Fragment = ""
	return u.Scheme + "://" + u.Host, u.String(), true
}

// MergeHeaders layers caller headers over defaults. Keys are compared
// case-insensitively; later layers win.
func MergeHeaders(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	canon := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			ck := http.CanonicalHeaderKey(strings.TrimSpace(k))
			if ck == "" {
				continue
			}
			if prev, ok := canon[ck]; ok {
				delete(out, prev)
			}
			canon[ck] = ck
			out[ck] = v
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
