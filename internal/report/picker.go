package report

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mohaanymo/streamprobe/internal/models"
)

// PickerResult is returned when track selection is complete.
type PickerResult struct {
	Selected []*models.Track
	Canceled bool
}

// Picker is an interactive track list for the -s interactive selector.
type Picker struct {
	tracks       []*models.Track
	videos       []*models.Track
	audios       []*models.Track
	subtitles    []*models.Track
	selected     map[string]bool
	cursor       int
	scrollOffset int
	visibleRows  int
	width        int
	height       int
	canceled     bool
}

// NewPicker categorizes tracks and pre-selects the highest bandwidth
// video and audio.
func NewPicker(tracks []*models.Track) *Picker {
	p := &Picker{
		tracks:      tracks,
		selected:    make(map[string]bool),
		width:       80,
		height:      24,
		visibleRows: 15,
	}

	for _, t := range tracks {
		switch {
		case t.IsSubtitle():
			p.subtitles = append(p.subtitles, t)
		case t.IsAudio():
			p.audios = append(p.audios, t)
		default:
			p.videos = append(p.videos, t)
		}
	}

	for _, group := range [][]*models.Track{p.videos, p.audios} {
		if len(group) == 0 {
			continue
		}
		best := group[0]
		for _, t := range group {
			if t.Bandwidth > best.Bandwidth {
				best = t
			}
		}
		p.selected[best.ID] = true
	}

	return p
}

func (p *Picker) Init() tea.Cmd {
	return nil
}

func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			p.canceled = true
			return p, tea.Quit

		case "enter":
			return p, tea.Quit

		case "up", "k":
			if p.cursor > 0 {
				p.cursor--
				p.adjustScroll()
			}

		case "down", "j":
			if p.cursor < p.count()-1 {
				p.cursor++
				p.adjustScroll()
			}

		case " ", "x":
			if t := p.trackAtCursor(); t != nil {
				p.selected[t.ID] = !p.selected[t.ID]
			}

		case "v":
			p.selectAll(p.videos)
		case "a":
			p.selectAll(p.audios)
		case "s":
			p.selectAll(p.subtitles)

		case "n":
			clear(p.selected)
		}

	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		p.visibleRows = clamp(msg.Height-14, 5, 30)
		p.adjustScroll()
	}

	return p, nil
}

func (p *Picker) count() int {
	return len(p.videos) + len(p.audios) + len(p.subtitles)
}

func (p *Picker) selectAll(tracks []*models.Track) {
	for _, t := range tracks {
		p.selected[t.ID] = true
	}
}

func (p *Picker) trackAtCursor() *models.Track {
	i := p.cursor
	for _, group := range [][]*models.Track{p.videos, p.audios, p.subtitles} {
		if i < len(group) {
			return group[i]
		}
		i -= len(group)
	}
	return nil
}

func (p *Picker) adjustScroll() {
	if p.cursor < p.scrollOffset {
		p.scrollOffset = p.cursor
	}
	if p.cursor >= p.scrollOffset+p.visibleRows {
		p.scrollOffset = p.cursor - p.visibleRows + 1
	}
}

func (p *Picker) View() string {
	w := clamp(p.width-4, 60, 100)

	var b strings.Builder

	title := titleStyle.Render("streamprobe")
	subtitle := dimStyle.Render(" - Select Tracks")
	b.WriteString(headerStyle.Width(w).Render(title + subtitle))
	b.WriteString("\n\n")

	type item struct {
		track   *models.Track
		badge   string
		section string
	}

	var items []item
	for _, t := range p.videos {
		items = append(items, item{t, "VIDEO", "Video Tracks"})
	}
	for _, t := range p.audios {
		items = append(items, item{t, "AUDIO", "Audio Tracks"})
	}
	for _, t := range p.subtitles {
		items = append(items, item{t, "SUB", "Subtitle Tracks"})
	}

	if p.scrollOffset > 0 {
		b.WriteString(dimStyle.Render("  ↑ more tracks above"))
		b.WriteString("\n")
	}

	lastSection := ""
	end := min(p.scrollOffset+p.visibleRows, len(items))
	for i := p.scrollOffset; i < end; i++ {
		it := items[i]
		if it.section != lastSection {
			if lastSection != "" {
				b.WriteString("\n")
			}
			b.WriteString(sectionStyle.Render(it.section))
			b.WriteString("\n\n")
			lastSection = it.section
		}

		if i == p.cursor {
			b.WriteString(selectedStyle.Render("▸ "))
		} else {
			b.WriteString("  ")
		}
		b.WriteString(trackRow(it.track, p.selected[it.track.ID], it.badge))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if end < len(items) {
		b.WriteString(dimStyle.Render("  ↓ more tracks below"))
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("Selected: %d tracks", len(p.Result().Selected))))
	b.WriteString("\n\n")

	b.WriteString(helpStyle.Render(
		keyHelpStyle.Render("↑/↓") + " navigate  " +
			keyHelpStyle.Render("space") + " toggle  " +
			keyHelpStyle.Render("enter") + " confirm  " +
			keyHelpStyle.Render("q") + " cancel",
	))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(
		keyHelpStyle.Render("v") + " all video  " +
			keyHelpStyle.Render("a") + " all audio  " +
			keyHelpStyle.Render("s") + " all subs  " +
			keyHelpStyle.Render("n") + " none",
	))

	return contentStyle.Width(w).Render(b.String())
}

// Result returns the selected tracks in their original order.
func (p *Picker) Result() PickerResult {
	if p.canceled {
		return PickerResult{Canceled: true}
	}

	var selected []*models.Track
	for _, t := range p.tracks {
		if p.selected[t.ID] {
			selected = append(selected, t)
		}
	}
	return PickerResult{Selected: selected}
}
