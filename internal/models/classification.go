package models

// Subtype is the light-parse verdict for a candidate URL.
type Subtype string

const (
	SubtypeHLSMaster     Subtype = "hls-master"
	SubtypeHLSVariant    Subtype = "hls-variant"
	SubtypeDASHMaster    Subtype = "dash-master"
	SubtypeDASHVariant   Subtype = "dash-variant"
	SubtypeNotAVideo     Subtype = "not-a-video"
	SubtypeNotADASHVideo Subtype = "not-a-dash-video"
	SubtypeFetchFailed   Subtype = "fetch-failed"
	SubtypeParseError    Subtype = "parse-error"
	SubtypeUnknownType   Subtype = "unknown-type"
	SubtypeProcessing    Subtype = "processing"
)

// IsHLS reports whether the subtype is an HLS playlist.
func (s Subtype) IsHLS() bool {
	return s == SubtypeHLSMaster || s == SubtypeHLSVariant
}

// IsDASH reports whether the subtype is a DASH manifest.
func (s Subtype) IsDASH() bool {
	return s == SubtypeDASHMaster || s == SubtypeDASHVariant
}

// Classification is the result of the light parse.
// Content is only set when it holds the whole document, so the full
// parse can reuse it without a second fetch.
type Classification struct {
	IsValid       bool           `json:"isValid"`
	Subtype       Subtype        `json:"subtype"`
	IsMaster      bool           `json:"isMaster,omitempty"`
	IsVariant     bool           `json:"isVariant,omitempty"`
	Content       string         `json:"-"`
	ContentType   string         `json:"contentType,omitempty"`
	HeadConfirmed bool           `json:"headConfirmed,omitempty"`
	Status        int            `json:"status,omitempty"`
	Hint          *VideoMetadata `json:"hint,omitempty"`
	Error         string         `json:"error,omitempty"`
}
