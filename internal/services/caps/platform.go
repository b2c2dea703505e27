package caps

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Platform identifies a machine an image was mastered for.
type Platform int

var platformNames = [...]string{
	"N/A", "Amiga", "Atari ST", "IBM PC", "Amstrad CPC",
	"Spectrum", "Sam Coupe", "Archimedes", "C64", "Atari (8-bit)",
}

func (p Platform) String() string {
	if p >= 0 && int(p) < len(platformNames) {
		return platformNames[p]
	}
	return fmt.Sprintf("Unknown (%d)", int(p))
}

// ParsePlatform resolves a platform by name, ignoring case.
func ParsePlatform(name string) (Platform, bool) {
	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(name))
	for i, n := range platformNames {
		if fold.String(n) == want {
			return Platform(i), true
		}
	}
	return 0, false
}

// PlatformList joins platform names for display.
func PlatformList(platforms []Platform) string {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = p.String()
	}
	return strings.Join(names, ", ")
}
