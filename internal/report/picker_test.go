package report

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohaanymo/streamprobe/internal/models"
)

func pickerTracks() []*models.Track {
	v1 := &models.Track{ID: "v1", Type: models.TrackVideo, Codecs: "avc1.64001f", Bandwidth: 2500000}
	v1.SetResolution(models.Resolution{Width: 1280, Height: 720})
	v2 := &models.Track{ID: "v2", Type: models.TrackVideo, Codecs: "avc1.640028", Bandwidth: 5000000}
	v2.SetResolution(models.Resolution{Width: 1920, Height: 1080})
	return []*models.Track{
		v1,
		v2,
		{ID: "a1", Type: models.TrackAudio, Codecs: "mp4a.40.2", Bandwidth: 64000, Language: "en"},
		{ID: "a2", Type: models.TrackAudio, Codecs: "mp4a.40.2", Bandwidth: 128000, Language: "tr"},
		{ID: "s1", Type: models.TrackSubtitle, Codecs: "wvtt", Language: "ar"},
	}
}

func selectedIDs(res PickerResult) []string {
	var out []string
	for _, t := range res.Selected {
		out = append(out, t.ID)
	}
	return out
}

func TestPickerPreselectsBest(t *testing.T) {
	p := NewPicker(pickerTracks())
	assert.Equal(t, []string{"v2", "a2"}, selectedIDs(p.Result()))
	assert.Contains(t, p.View(), "Selected: 2 tracks")
}

func TestPickerToggle(t *testing.T) {
	p := NewPicker(pickerTracks())

	// Cursor starts on v1; toggle it on, then move to v2 and toggle it off.
	p.Update(tea.KeyMsg{Type: tea.KeySpace})
	p.Update(tea.KeyMsg{Type: tea.KeyDown})
	p.Update(keyMsg("x"))

	assert.Equal(t, []string{"v1", "a2"}, selectedIDs(p.Result()))
}

func TestPickerCursorBounds(t *testing.T) {
	p := NewPicker(pickerTracks())

	p.Update(keyMsg("k"))
	assert.Equal(t, 0, p.cursor)

	for i := 0; i < 10; i++ {
		p.Update(keyMsg("j"))
	}
	assert.Equal(t, 4, p.cursor)
	assert.Equal(t, "s1", p.trackAtCursor().ID)
}

func TestPickerBulkKeys(t *testing.T) {
	p := NewPicker(pickerTracks())

	p.Update(keyMsg("n"))
	assert.Empty(t, p.Result().Selected)

	p.Update(keyMsg("a"))
	assert.Equal(t, []string{"a1", "a2"}, selectedIDs(p.Result()))

	p.Update(keyMsg("v"))
	p.Update(keyMsg("s"))
	assert.Len(t, p.Result().Selected, 5)
}

func TestPickerConfirmAndCancel(t *testing.T) {
	p := NewPicker(pickerTracks())
	_, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	res := p.Result()
	assert.False(t, res.Canceled)
	assert.Len(t, res.Selected, 2)

	p = NewPicker(pickerTracks())
	_, cmd = p.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	res = p.Result()
	assert.True(t, res.Canceled)
	assert.Empty(t, res.Selected)
}

func TestPickerScroll(t *testing.T) {
	p := NewPicker(pickerTracks())
	p.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
	require.Equal(t, 5, p.visibleRows)

	p.visibleRows = 2
	for i := 0; i < 3; i++ {
		p.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	assert.Equal(t, 2, p.scrollOffset)

	view := p.View()
	assert.Contains(t, view, "more tracks above")
	assert.Contains(t, view, "more tracks below")
}
