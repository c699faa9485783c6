package parser

import (
	"fmt"
	"strings"

	"github.com/grafov/m3u8"
	mpd "github.com/unki2aut/go-mpd"
)

// lintHLS runs a strict decoder over the playlist. Problems are reported
// as warnings only; the tolerant scanner's output is what counts.
func lintHLS(content string) (warnings []string) {
	defer func() {
		if r := recover(); r != nil {
			warnings = []string{fmt.Sprintf("hls: strict decoder panicked: %v", r)}
		}
	}()

	_, listType, err := m3u8.DecodeFrom(strings.NewReader(content), true)
	if err != nil {
		return []string{"hls: " + err.Error()}
	}
	master := strings.Contains(content, sigStreamInf)
	if master && listType != m3u8.MASTER {
		warnings = append(warnings, "hls: strict decoder did not recognize a master playlist")
	}
	if !master && listType != m3u8.MEDIA {
		warnings = append(warnings, "hls: strict decoder did not recognize a media playlist")
	}
	return warnings
}

// lintMPD decodes the MPD as strict XML and reports failures as warnings.
func lintMPD(content string) (warnings []string) {
	defer func() {
		if r := recover(); r != nil {
			warnings = []string{fmt.Sprintf("dash: strict decoder panicked: %v", r)}
		}
	}()

	m := new(mpd.MPD)
	if err := m.Decode([]byte(content)); err != nil {
		return []string{"dash: " + err.Error()}
	}
	return nil
}
