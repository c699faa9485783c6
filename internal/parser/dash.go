package parser

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/urlnorm"
)

// DASHParser parses DASH (mpd) manifests.
type DASHParser struct {
	*core
}

// NewDASHParser creates a new DASH parser.
func NewDASHParser(f Fetcher, opts ...Option) *DASHParser {
	return &DASHParser{core: newCore(f, newSettings(opts))}
}

// CanParse checks if URL is a DASH manifest.
func (p *DASHParser) CanParse(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	return strings.Contains(lower, ".mpd") || strings.Contains(lower, "format=mpd")
}

// MPDInfo is the pure parse of an MPD document.
type MPDInfo struct {
	Duration       *int
	IsLive         bool
	IsEncrypted    bool
	EncryptionType string
	Periods        int

	VideoTracks    []*models.Track
	AudioTracks    []*models.Track
	SubtitleTracks []*models.Track
	Variants       []*models.Variant
}

type adaptationSet struct {
	el     element
	period int
	base   *url.URL
}

// ParseMPD flattens every Representation into a track. It scans tag
// regions instead of decoding XML, so a truncated or sloppy document
// still yields whatever it contains.
func ParseMPD(content, manifestURL string) MPDInfo {
	var info MPDInfo
	content = stripMarkup(content)

	mpdEl, ok := firstElement(content, "MPD")
	if !ok {
		mpdEl = element{Name: "MPD", Attrs: map[string]string{}, Inner: content}
	}
	info.IsLive = strings.EqualFold(mpdEl.Attr("type"), "dynamic")
	info.IsEncrypted, info.EncryptionType = detectDRM(content)

	totalSeconds, haveTotal := parseISODuration(mpdEl.Attr("mediaPresentationDuration"))
	info.Duration = durationSeconds(mpdEl.Attr("mediaPresentationDuration"))

	periods := findElements(mpdEl.Inner, "Period")
	mpdBase := resolveBase(parseBaseURL(manifestURL), baseURLOf(stripElements(mpdEl.Inner, "Period")))
	if len(periods) == 0 {
		periods = []element{{Name: "Period", Attrs: map[string]string{}, Inner: mpdEl.Inner}}
	}
	info.Periods = len(periods)

	if !haveTotal {
		totalSeconds, haveTotal = sumPeriodDurations(periods)
		if haveTotal {
			info.Duration = intPtr(int(math.Round(totalSeconds)))
		}
	}

	var sets []adaptationSet
	anySetProtected := false
	for pi, period := range periods {
		periodBase := resolveBase(mpdBase, baseURLOf(stripElements(period.Inner, "AdaptationSet")))
		for _, as := range findElements(period.Inner, "AdaptationSet") {
			sets = append(sets, adaptationSet{el: as, period: pi, base: periodBase})
			if enc, _ := detectDRM(as.Inner); enc {
				anySetProtected = true
			}
		}
	}

	b := trackBuilder{
		info:         &info,
		ids:          newIDSet(),
		totalSeconds: totalSeconds,
		haveTotal:    haveTotal,
		inheritDRM:   info.IsEncrypted && !anySetProtected,
	}
	for i, set := range sets {
		b.addAdaptationSet(i, set)
	}

	info.Variants = syntheticVariants(info.VideoTracks, info.AudioTracks, manifestURL)
	return info
}

func sumPeriodDurations(periods []element) (float64, bool) {
	var total float64
	for _, p := range periods {
		d, ok := parseISODuration(p.Attr("duration"))
		if !ok {
			return 0, false
		}
		total += d
	}
	return total, len(periods) > 0
}

type trackBuilder struct {
	info         *MPDInfo
	ids          idSet
	totalSeconds float64
	haveTotal    bool
	inheritDRM   bool
}

func (b *trackBuilder) addAdaptationSet(index int, set adaptationSet) {
	as := set.el
	own := stripElements(as.Inner, "Representation")
	reps := findElements(as.Inner, "Representation")
	if len(reps) == 0 {
		return
	}

	kind, ok := adaptationKind(as, own, reps)
	if !ok {
		return
	}

	asBaseURL := baseURLOf(own)
	asBase := resolveBase(set.base, asBaseURL)
	asSegs := readSegments(own)
	asEnc, asDRM := detectDRM(own)
	lang := models.NormalizeLanguage(as.Attr("lang"))
	label := firstNonEmpty(as.Attr("label"), childText(own, "Label"))
	asChannels := channelConfig(own)

	for ri, rep := range reps {
		repBaseURL := baseURLOf(rep.Inner)
		repBase := resolveBase(asBase, repBaseURL)

		id := rep.Attr("id")
		if id == "" {
			id = fmt.Sprintf("%s_%d_%d", kind, index, ri)
		}

		t := &models.Track{
			ID:        b.ids.unique(id),
			Type:      kind,
			GroupID:   as.Attr("id"),
			Codecs:    firstNonEmpty(rep.Attr("codecs"), as.Attr("codecs")),
			MimeType:  firstNonEmpty(rep.Attr("mimeType"), as.Attr("mimeType")),
			Language:  lang,
			Label:     label,
			Duration:  b.info.Duration,
			IsLive:    b.info.IsLive,
			Segments:  b.segmentAddressing(rep, asSegs, repBase),
			FrameRate: parseFrameRate(firstNonEmpty(rep.Attr("frameRate"), as.Attr("frameRate"))),
		}
		t.Bandwidth, _ = strconv.ParseInt(rep.Attr("bandwidth"), 10, 64)
		t.EstimatedFileSizeBytes = estimateSize(t.Bandwidth, t.Duration)

		if repBaseURL != "" || asBaseURL != "" {
			t.URL = repBase.String()
			t.NormalizedURL = urlnorm.Normalize(t.URL)
		}

		repEnc, repDRM := detectDRM(rep.Inner)
		switch {
		case repEnc:
			t.IsEncrypted, t.EncryptionType = true, repDRM
		case asEnc:
			t.IsEncrypted, t.EncryptionType = true, asDRM
		case b.inheritDRM:
			t.IsEncrypted, t.EncryptionType = true, b.info.EncryptionType
		}

		switch kind {
		case models.TrackVideo:
			t.SetResolution(models.Resolution{
				Width:  firstNonZero(atoi(rep.Attr("width")), atoi(as.Attr("width"))),
				Height: firstNonZero(atoi(rep.Attr("height")), atoi(as.Attr("height"))),
			})
			b.info.VideoTracks = append(b.info.VideoTracks, t)
		case models.TrackAudio:
			t.AudioSamplingRate = atoi(firstField(firstNonEmpty(rep.Attr("audioSamplingRate"), as.Attr("audioSamplingRate"))))
			t.ChannelConfiguration = firstNonEmpty(channelConfig(rep.Inner), asChannels)
			t.Channels = atoi(t.ChannelConfiguration)
			b.info.AudioTracks = append(b.info.AudioTracks, t)
		case models.TrackSubtitle:
			b.info.SubtitleTracks = append(b.info.SubtitleTracks, t)
		}
	}
}

// adaptationKind classifies a set: mimeType/contentType first, then Role,
// then codecs. ok is false when nothing identifies it.
func adaptationKind(as element, own string, reps []element) (models.TrackType, bool) {
	mime := strings.ToLower(firstNonEmpty(as.Attr("mimeType"), as.Attr("contentType"), reps[0].Attr("mimeType"), reps[0].Attr("contentType")))
	switch {
	case strings.Contains(mime, "video"):
		return models.TrackVideo, true
	case strings.Contains(mime, "audio"):
		return models.TrackAudio, true
	case strings.Contains(mime, "text"), strings.Contains(mime, "ttml"), strings.Contains(mime, "vtt"), strings.Contains(mime, "subtitle"):
		return models.TrackSubtitle, true
	}

	for _, role := range findElements(own, "Role") {
		switch strings.ToLower(role.Attr("value")) {
		case "subtitle", "caption":
			return models.TrackSubtitle, true
		}
	}

	codecs := firstNonEmpty(as.Attr("codecs"), reps[0].Attr("codecs"))
	switch {
	case codecs == "":
		return 0, false
	case models.HasSubtitleCodec(codecs):
		return models.TrackSubtitle, true
	case models.HasVideoCodec(codecs):
		return models.TrackVideo, true
	case models.HasAudioCodec(codecs):
		return models.TrackAudio, true
	}
	return 0, false
}

type segmentInfo struct {
	template *models.SegmentTemplate
	base     *models.SegmentBase
	list     *models.SegmentList
	listInit string
}

// readSegments reads the addressing elements that are direct content of
// fragment (callers strip nested Representations first).
func readSegments(fragment string) segmentInfo {
	var si segmentInfo

	if el, ok := firstElement(fragment, "SegmentTemplate"); ok {
		t := &models.SegmentTemplate{
			Media:          el.Attr("media"),
			Initialization: el.Attr("initialization"),
			Timescale:      atoi64(el.Attr("timescale")),
			Duration:       atoi64(el.Attr("duration")),
			StartNumber:    atoi64(el.Attr("startNumber")),
		}
		if t.Initialization == "" {
			if init, ok := firstElement(el.Inner, "Initialization"); ok {
				t.Initialization = init.Attr("sourceURL")
			}
		}
		if tl, ok := firstElement(el.Inner, "SegmentTimeline"); ok {
			for _, s := range findElements(tl.Inner, "S") {
				repeat := atoi64(s.Attr("r"))
				if repeat < 0 {
					repeat = 0
				}
				t.TimelineEntries += int(repeat + 1)
				t.TimelineUnits += atoi64(s.Attr("d")) * (repeat + 1)
			}
		}
		si.template = t
	}

	if el, ok := firstElement(fragment, "SegmentBase"); ok {
		sb := &models.SegmentBase{
			IndexRange: el.Attr("indexRange"),
			Timescale:  atoi64(el.Attr("timescale")),
		}
		if init, ok := firstElement(el.Inner, "Initialization"); ok {
			sb.Initialization = firstNonEmpty(init.Attr("sourceURL"), init.Attr("range"))
		}
		si.base = sb
	}

	if el, ok := firstElement(fragment, "SegmentList"); ok {
		sl := &models.SegmentList{
			Timescale: atoi64(el.Attr("timescale")),
			Duration:  atoi64(el.Attr("duration")),
			Count:     len(findElements(el.Inner, "SegmentURL")),
		}
		if init, ok := firstElement(el.Inner, "Initialization"); ok {
			sl.Initialization = init.Attr("sourceURL")
			si.listInit = init.Attr("sourceURL")
		}
		si.list = sl
	}
	return si
}

// segmentAddressing merges representation-level addressing over the
// adaptation set's. Each element overrides independently.
func (b *trackBuilder) segmentAddressing(rep element, parent segmentInfo, base *url.URL) *models.SegmentAddressing {
	own := readSegments(rep.Inner)
	sa := &models.SegmentAddressing{
		Template: own.template,
		Base:     own.base,
		List:     own.list,
	}
	if sa.Template == nil {
		sa.Template = parent.template
	}
	if sa.Base == nil {
		sa.Base = parent.base
	}
	listInit := own.listInit
	if sa.List == nil {
		sa.List = parent.list
		listInit = parent.listInit
	}
	if base != nil {
		sa.BaseURL = base.String()
	}

	repID := rep.Attr("id")
	bandwidth := atoi64(rep.Attr("bandwidth"))
	switch {
	case sa.Template != nil:
		if sa.Template.Initialization != "" {
			sa.InitializationURL = resolveURL(base, expandTemplate(sa.Template.Initialization, repID, bandwidth, sa.Template.StartNumber, 0))
		}
		sa.SegmentCount = b.templateSegmentCount(sa.Template)
	case sa.List != nil:
		if listInit != "" {
			sa.InitializationURL = resolveURL(base, listInit)
		}
		sa.SegmentCount = sa.List.Count
	case sa.Base != nil:
		sa.InitializationURL = sa.BaseURL
		sa.SegmentCount = 1
	}
	return sa
}

func (b *trackBuilder) templateSegmentCount(t *models.SegmentTemplate) int {
	if t.TimelineEntries > 0 {
		return t.TimelineEntries
	}
	if t.Duration <= 0 || !b.haveTotal {
		return 0
	}
	timescale := t.Timescale
	if timescale <= 0 {
		timescale = 1
	}
	segSeconds := float64(t.Duration) / float64(timescale)
	return int(math.Ceil(b.totalSeconds / segSeconds))
}

// syntheticVariants builds the quality list: one entry per video track,
// codecs combined with the first audio track's, highest bandwidth first.
func syntheticVariants(video, audio []*models.Track, manifestURL string) []*models.Variant {
	audioCodec := ""
	if len(audio) > 0 {
		audioCodec = audio[0].Codecs
	}

	variants := make([]*models.Variant, 0, len(video))
	for _, t := range video {
		codecs := t.Codecs
		if audioCodec != "" && !strings.Contains(codecs, audioCodec) {
			codecs = strings.Trim(codecs+","+audioCodec, ",")
		}
		u := firstNonEmpty(t.URL, manifestURL)
		variants = append(variants, &models.Variant{
			ID:                     t.ID,
			URL:                    u,
			NormalizedURL:          urlnorm.Normalize(u),
			Bandwidth:              t.Bandwidth,
			Codecs:                 codecs,
			Width:                  t.Width,
			Height:                 t.Height,
			StandardizedResolution: t.StandardizedResolution,
			FrameRate:              t.FrameRate,
			Duration:               t.Duration,
			IsLive:                 t.IsLive,
			IsEncrypted:            t.IsEncrypted,
			EncryptionType:         t.EncryptionType,
			EstimatedFileSizeBytes: t.EstimatedFileSizeBytes,
		})
	}
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bandwidth > variants[j].Bandwidth
	})
	return variants
}

// parseContent builds the result from a complete MPD.
func (p *DASHParser) parseContent(_ context.Context, rawURL, normalized, content string, _ map[string]string) *models.Result {
	info := ParseMPD(content, rawURL)

	res := &models.Result{
		URL:            rawURL,
		NormalizedURL:  normalized,
		Type:           models.ManifestDASH,
		IsValid:        true,
		Duration:       info.Duration,
		IsLive:         info.IsLive,
		IsEncrypted:    info.IsEncrypted,
		EncryptionType: info.EncryptionType,
		VideoTracks:    orEmpty(info.VideoTracks),
		AudioTracks:    orEmpty(info.AudioTracks),
		SubtitleTracks: orEmpty(info.SubtitleTracks),
		Variants:       info.Variants,
		Status:         models.StatusSuccess,
	}
	if strings.Contains(content, sigAdaptationSet) && strings.Contains(content, sigRepresentation) {
		res.IsMaster = true
	} else {
		res.IsVariant = true
	}
	if p.opts.Lint {
		res.Warnings = lintMPD(content)
	}
	return res
}

func orEmpty(tracks []*models.Track) []*models.Track {
	if tracks == nil {
		return []*models.Track{}
	}
	return tracks
}

// Helper functions

func baseURLOf(fragment string) string {
	el, ok := firstElement(fragment, "BaseURL")
	if !ok {
		return ""
	}
	return el.Text()
}

func childText(fragment, name string) string {
	el, ok := firstElement(fragment, name)
	if !ok {
		return ""
	}
	return el.Text()
}

func channelConfig(fragment string) string {
	el, ok := firstElement(fragment, "AudioChannelConfiguration")
	if !ok {
		return ""
	}
	return el.Attr("value")
}

func resolveBase(parent *url.URL, paths ...string) *url.URL {
	result := parent
	for _, p := range paths {
		if p == "" {
			continue
		}
		rel, err := url.Parse(p)
		if err != nil {
			continue
		}
		if result == nil {
			result = rel
			continue
		}
		result = result.ResolveReference(rel)
	}
	return result
}

var templateVarRe = regexp.MustCompile(`\$(RepresentationID|Number|Bandwidth|Time)(?:%0?(\d+)d)?\$`)

func expandTemplate(template, repID string, bandwidth, number, t int64) string {
	result := templateVarRe.ReplaceAllStringFunc(template, func(match string) string {
		m := templateVarRe.FindStringSubmatch(match)
		var v int64
		switch m[1] {
		case "RepresentationID":
			return repID
		case "Number":
			v = number
		case "Bandwidth":
			v = bandwidth
		case "Time":
			v = t
		}
		if m[2] != "" {
			width, _ := strconv.Atoi(m[2])
			return fmt.Sprintf("%0*d", width, v)
		}
		return strconv.FormatInt(v, 10)
	})
	return strings.ReplaceAll(result, "$$", "$")
}

func parseFrameRate(s string) float64 {
	if s == "" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0
	}
	if found {
		d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil || d == 0 {
			return 0
		}
		n /= d
	}
	return math.Round(n*1000) / 1000
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}
