package probe

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohaanymo/streamprobe/internal/httpclient"
)

func ftyp(major string, compatible ...string) []byte {
	size := 16 + 4*len(compatible)
	b := make([]byte, 0, size)
	b = binary.BigEndian.AppendUint32(b, uint32(size))
	b = append(b, "ftyp"...)
	b = append(b, major...)
	b = binary.BigEndian.AppendUint32(b, 0x200)
	for _, c := range compatible {
		b = append(b, c...)
	}
	return b
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		container string
		brand     string
	}{
		{"mp4 brand", ftyp("isom", "isom", "iso2", "avc1", "mp41"), "mp4", "isom"},
		{"dash brand", ftyp("dash", "iso6", "mp41"), "mp4", "dash"},
		{"quicktime brand", ftyp("qt  ", "qt  "), "quicktime", "qt"},
		{"mp3 with id3", append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...), "mp3", ""},
		{"text", []byte("just some text, not media"), "", ""},
		{"empty", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Detect(tt.data)
			assert.Equal(t, tt.container, r.Container)
			assert.Equal(t, tt.brand, r.MajorBrand)
		})
	}
}

func TestDetectTruncatedFtyp(t *testing.T) {
	data := ftyp("isom", "isom", "mp41")
	r := Detect(data[:10])
	assert.Empty(t, r.MajorBrand)
}

func TestSniff(t *testing.T) {
	body := append(ftyp("qt  ", "qt  "), make([]byte, 2048)...)
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	r, err := Sniff(context.Background(), httpclient.NewFetcher(srv.Client()), srv.URL+"/movie", nil)

	require.NoError(t, err)
	assert.Equal(t, "quicktime", r.Container)
	assert.Equal(t, []string{"qt"}, r.CompatibleBrands)
	assert.Equal(t, "bytes=0-511", gotRange)
}

func TestSniffFetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := SniffN(context.Background(), httpclient.NewFetcher(srv.Client()), srv.URL+"/missing", nil, 64)

	require.Error(t, err)
	assert.ErrorIs(t, err, httpclient.ErrStatus)
}
