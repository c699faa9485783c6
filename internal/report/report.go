// Package report renders parse results for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mohaanymo/streamprobe/internal/container"
	"github.com/mohaanymo/streamprobe/internal/discover"
	"github.com/mohaanymo/streamprobe/internal/engine"
	"github.com/mohaanymo/streamprobe/internal/models"
)

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result renders a parse result. Tracks in selected are marked.
func Result(w io.Writer, res *models.Result, selected []*models.Track) error {
	var b strings.Builder

	b.WriteString(headerStyle.Render(titleStyle.Render(strings.ToUpper(res.Type.String())) + "  " + valueStyle.Render(res.URL)))
	b.WriteString("\n")

	if !res.IsValid {
		b.WriteString(errorStyle.Render("✗ " + string(res.Status)))
		if res.Error != "" {
			b.WriteString(dimStyle.Render(" • " + res.Error))
		}
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	kind := "variant"
	if res.IsMaster {
		kind = "master"
	}
	stat(&b, "Kind", kind)
	stat(&b, "Duration", formatDuration(res.Duration, res.IsLive))
	if res.IsEncrypted {
		stat(&b, "Encryption", firstNonEmpty(res.EncryptionType, "yes"))
	}
	if res.Version > 0 {
		stat(&b, "Version", fmt.Sprintf("%d", res.Version))
	}
	b.WriteString("\n")

	marked := make(map[*models.Track]bool, len(selected))
	for _, t := range selected {
		marked[t] = true
	}

	section(&b, "Video Tracks", res.VideoTracks, "VIDEO", marked)
	section(&b, "Audio Tracks", res.AudioTracks, "AUDIO", marked)
	section(&b, "Subtitle Tracks", res.SubtitleTracks, "SUB", marked)

	for _, v := range res.Variants {
		if v.EnrichmentError != "" {
			b.WriteString(warningStyle.Render(fmt.Sprintf("! variant %s: %s", v.ID, v.EnrichmentError)))
			b.WriteString("\n")
		}
	}
	for _, warn := range res.Warnings {
		b.WriteString(warningStyle.Render("! " + warn))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func stat(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-11s", label)))
	b.WriteString(statValueStyle.Render(value))
	b.WriteString("\n")
}

func section(b *strings.Builder, title string, tracks []*models.Track, badge string, marked map[*models.Track]bool) {
	if len(tracks) == 0 {
		return
	}
	b.WriteString(sectionStyle.Render(title))
	b.WriteString("\n")
	for _, t := range tracks {
		b.WriteString(trackRow(t, marked[t], badge))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func trackRow(t *models.Track, selected bool, badge string) string {
	var b strings.Builder

	if selected {
		b.WriteString(successStyle.Render("[✓] "))
	} else {
		b.WriteString(dimStyle.Render("[ ] "))
	}

	switch badge {
	case "VIDEO":
		b.WriteString(videoBadge.Render("VIDEO"))
	case "AUDIO":
		b.WriteString(audioBadge.Render("AUDIO"))
	case "SUB":
		b.WriteString(subtitleBadge.Render("SUB"))
	}
	b.WriteString(" ")

	b.WriteString(valueStyle.Render(fmt.Sprintf("%-6s", t.Resolution.QualityLabel())))
	b.WriteString(" ")
	b.WriteString(valueStyle.Render(fmt.Sprintf("%-15s", t.Codecs)))

	if t.Language != "" {
		b.WriteString(dimStyle.Render(" • "))
		b.WriteString(valueStyle.Render(t.Language))
	}
	if t.Bandwidth > 0 {
		b.WriteString(dimStyle.Render(" • "))
		b.WriteString(dimStyle.Render(formatBandwidth(t.Bandwidth)))
	}
	if t.Container != "" {
		b.WriteString(dimStyle.Render(" • "))
		b.WriteString(dimStyle.Render(t.Container))
	}
	if t.IsEncrypted {
		b.WriteString(warningStyle.Render(" • " + firstNonEmpty(t.EncryptionType, "encrypted")))
	}
	return b.String()
}

// Jobs renders a batch summary.
func Jobs(w io.Writer, jobs []*engine.Job) error {
	var b strings.Builder
	ok := 0
	for _, j := range jobs {
		res := j.Result
		if res != nil && res.IsValid {
			ok++
			b.WriteString(successStyle.Render("✓ "))
		} else {
			b.WriteString(errorStyle.Render("✗ "))
		}
		b.WriteString(valueStyle.Render(j.URL))
		if res != nil {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" • %s", res.Status)))
			if res.IsValid {
				b.WriteString(dimStyle.Render(fmt.Sprintf(" • %d tracks", len(res.Tracks()))))
			}
		}
		if j.Resumed {
			b.WriteString(dimStyle.Render(" • resumed"))
		}
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("%d/%d manifests parsed", ok, len(jobs))))
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Candidates renders media URLs found on a page.
func Candidates(w io.Writer, pageURL string, cands []discover.Candidate) error {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Media on " + pageURL))
	b.WriteString("\n")
	if len(cands) == 0 {
		b.WriteString(dimStyle.Render("nothing found"))
		b.WriteString("\n")
	}
	for _, c := range cands {
		b.WriteString(valueStyle.Render(fmt.Sprintf("%-7s", c.Kind)))
		b.WriteString(valueStyle.Render(c.URL))
		b.WriteString(dimStyle.Render(" • " + c.Source))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Plan renders a download plan and its ffmpeg command.
func Plan(w io.Writer, plan *engine.Plan, headers map[string]string) error {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Download plan"))
	b.WriteString("\n")
	stat(&b, "Output", plan.Output)
	stat(&b, "Format", string(plan.Format))
	for _, in := range plan.Inputs {
		stat(&b, strings.ToUpper(in.Type[:1])+in.Type[1:], in.URL)
	}
	for _, s := range plan.Subtitles {
		stat(&b, "Subtitle", s.Path)
	}
	if len(plan.Inputs) > 0 {
		b.WriteString("\n")
		b.WriteString(codeStyle.Render(plan.Command(headers)))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Decision renders a container decision with every attempted step.
func Decision(w io.Writer, d container.Decision) error {
	var b strings.Builder
	stat(&b, "Container", firstNonEmpty(d.Container, "unknown"))
	stat(&b, "Confidence", d.Confidence.String())
	stat(&b, "Reason", d.Reason)
	for _, a := range d.AllAttempts {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %-8s %-9s %s", firstNonEmpty(a.Container, "-"), a.Confidence, a.Reason)))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatDuration(d *int, live bool) string {
	if live {
		return "live"
	}
	if d == nil {
		return "unknown"
	}
	s := *d
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func formatBandwidth(bw int64) string {
	if bw >= 1000000 {
		return fmt.Sprintf("%.1f Mbps", float64(bw)/1000000)
	}
	if bw >= 1000 {
		return fmt.Sprintf("%.0f kbps", float64(bw)/1000)
	}
	return fmt.Sprintf("%d bps", bw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
