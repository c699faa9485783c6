// Package probe identifies a media container from the first bytes of a
// resource.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/mohaanymo/streamprobe/internal/httpclient"
)

// DefaultSniffBytes is enough for an ftyp box or an EBML header.
const DefaultSniffBytes = 512

// ErrNoData is returned when the resource produced no bytes.
var ErrNoData = errors.New("probe: no data")

// Result describes what the bytes looked like.
type Result struct {
	Container        string   `json:"container,omitempty"`
	MimeType         string   `json:"mimeType,omitempty"`
	MajorBrand       string   `json:"majorBrand,omitempty"`
	CompatibleBrands []string `json:"compatibleBrands,omitempty"`
	Source           string   `json:"source,omitempty"`
}

// Detect inspects a prefix of a media file. ISO-BMFF files are read with
// mp4ff so that QuickTime and MP4 are told apart by major brand; other
// formats fall back to signature sniffing. Container is "" if nothing
// matched.
func Detect(data []byte) Result {
	if len(data) == 0 {
		return Result{}
	}
	if r, ok := detectISOBMFF(data); ok {
		return r
	}

	m := mimetype.Detect(data)
	r := Result{MimeType: m.String(), Source: "signature"}
	switch {
	case m.Is("video/webm"), m.Is("audio/webm"):
		r.Container = "webm"
	case m.Is("video/x-matroska"):
		r.Container = "matroska"
	case m.Is("video/quicktime"):
		r.Container = "quicktime"
	case m.Is("video/mp4"), m.Is("audio/mp4"):
		r.Container = "mp4"
	case m.Is("video/mp2t"):
		r.Container = "mpegts"
	case m.Is("audio/mpeg"):
		r.Container = "mp3"
	case m.Is("audio/aac"):
		r.Container = "aac"
	case m.Is("audio/ogg"), m.Is("video/ogg"), m.Is("application/ogg"):
		r.Container = "ogg"
	case m.Is("audio/flac"):
		r.Container = "flac"
	}
	return r
}

func detectISOBMFF(data []byte) (Result, bool) {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return Result{}, false
	}
	box, err := mp4.DecodeBox(0, bytes.NewReader(data))
	if err != nil {
		return Result{}, false
	}
	ftyp, ok := box.(*mp4.FtypBox)
	if !ok {
		return Result{}, false
	}

	brand := ftyp.MajorBrand()
	r := Result{
		MajorBrand: strings.TrimSpace(brand),
		Source:     "ftyp",
		Container:  "mp4",
		MimeType:   "video/mp4",
	}
	for _, c := range ftyp.CompatibleBrands() {
		r.CompatibleBrands = append(r.CompatibleBrands, strings.TrimSpace(c))
	}
	if brand == "qt  " {
		r.Container, r.MimeType = "quicktime", "video/quicktime"
	}
	return r, true
}

// RangeFetcher is the part of httpclient.Fetcher the sniffer needs.
type RangeFetcher interface {
	FetchRange(ctx context.Context, rawURL string, headers map[string]string, rangeBytes int, timeout time.Duration) httpclient.FetchResult
}

// Sniff fetches the first DefaultSniffBytes of rawURL and identifies the
// container.
func Sniff(ctx context.Context, f RangeFetcher, rawURL string, headers map[string]string) (Result, error) {
	return SniffN(ctx, f, rawURL, headers, DefaultSniffBytes)
}

// SniffN is Sniff with an explicit byte count.
func SniffN(ctx context.Context, f RangeFetcher, rawURL string, headers map[string]string, n int) (Result, error) {
	if n <= 0 {
		n = DefaultSniffBytes
	}
	res := f.FetchRange(ctx, rawURL, headers, n, httpclient.DefaultRangeTimeout)
	if !res.OK {
		return Result{}, fmt.Errorf("probe %s: %w", rawURL, res.Err())
	}
	if res.Content == "" {
		return Result{}, fmt.Errorf("probe %s: %w", rawURL, ErrNoData)
	}
	return Detect([]byte(res.Content)), nil
}
