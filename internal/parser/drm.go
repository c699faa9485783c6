package parser

import "strings"

// Encryption types reported for DASH content.
const (
	DRMWidevine  = "widevine"
	DRMPlayReady = "playready"
	DRMClearKey  = "clearkey"
	DRMFairPlay  = "fairplay"
	DRMCENC      = "cenc"
	DRMUnknown   = "unknown"
)

type drmSystem struct {
	name string
	id   string
}

// Checked in order; the first identifier found wins. The generic CENC
// scheme is last because it accompanies every system-specific entry.
var drmSystems = []drmSystem{
	{DRMWidevine, "edef8ba9-79d6-4ace-a3c8-27dcd51d21ed"},
	{DRMPlayReady, "9a04f079-9840-4286-ab92-e65be0885f95"},
	{DRMClearKey, "e2719d58-a985-b3c9-781a-b030af78d30e"},
	{DRMClearKey, "1077efec-c0b2-4d02-ace3-3c1e52e2fb4b"},
	{DRMFairPlay, "94ce86fb-07ff-4f43-adb8-93d2fa968ca2"},
	{DRMCENC, "urn:mpeg:dash:mp4protection:2011"},
}

// protectionMarkers indicate encrypted DASH content. A bare xmlns:cenc
// declaration does not count.
var protectionMarkers = []string{
	"<contentprotection",
	"<cenc:",
	"cenc:default_kid",
	"<dashif:",
	"dashif:laurl",
}

// detectDRM reports whether an MPD fragment is protected and by what.
func detectDRM(fragment string) (encrypted bool, system string) {
	lower := strings.ToLower(fragment)
	for _, m := range protectionMarkers {
		if strings.Contains(lower, m) {
			encrypted = true
			break
		}
	}
	if !encrypted {
		return false, ""
	}
	for _, d := range drmSystems {
		if strings.Contains(lower, d.id) {
			return true, d.name
		}
	}
	return true, DRMUnknown
}
