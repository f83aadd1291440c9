package proctor

import "strings"

// Capabilities describes which proctoring primitives the student's browser
// platform actually provides. It is computed once at session start from the
// client-reported platform so the signal heuristics can branch on it instead
// of sniffing per event.
type Capabilities struct {
	// SupportsFullscreenAPI is false on iOS Safari, which has no
	// element-level fullscreen. fullscreen_exit signals are ignored there.
	SupportsFullscreenAPI bool
	// ExposesVisualViewport gates the on-screen keyboard heuristic: a
	// viewport shrunk well below the window height means the keyboard is
	// likely open.
	ExposesVisualViewport bool
	// UsesPageHideForBackgrounding marks platforms (iOS) where pagehide /
	// pageshow, not visibilitychange, are the reliable backgrounding
	// signals.
	UsesPageHideForBackgrounding bool
}

// CapabilitiesFor maps a client-reported platform string to its capability
// set. Unknown platforms get the desktop profile.
func CapabilitiesFor(platform string) Capabilities {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "ios", "ipados":
		return Capabilities{
			SupportsFullscreenAPI:        false,
			ExposesVisualViewport:        true,
			UsesPageHideForBackgrounding: true,
		}
	case "android":
		return Capabilities{
			SupportsFullscreenAPI:        true,
			ExposesVisualViewport:        true,
			UsesPageHideForBackgrounding: false,
		}
	default:
		return Capabilities{
			SupportsFullscreenAPI: true,
		}
	}
}
