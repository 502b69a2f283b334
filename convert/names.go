package convert

import (
	"strings"

	"github.com/wippyai/spzconv"
)

const (
	extSPZ = ".spz"
	extPLY = ".ply"
)

// OutputName derives the output file name for a converted input.
//
// Compress replaces the final extension with .spz: "archive.tar.ply" becomes
// "archive.tar.spz". Decompress drops a trailing .spz in any case and appends
// .ply unless the rest already ends in .ply: "weird.ply.spz" becomes
// "weird.ply".
func OutputName(name string, dir spzconv.Direction) string {
	switch dir {
	case spzconv.Compress:
		return trimExt(name) + extSPZ
	case spzconv.Decompress:
		base := name
		if hasSuffixFold(base, extSPZ) {
			base = base[:len(base)-len(extSPZ)]
		}
		if hasSuffixFold(base, extPLY) {
			return base
		}
		return base + extPLY
	default:
		return name
	}
}

// trimExt removes the last ".ext" of the final path element. A trailing dot
// is not an extension.
func trimExt(name string) string {
	i := strings.LastIndexAny(name, "./")
	if i < 0 || name[i] != '.' || i == len(name)-1 {
		return name
	}
	return name[:i]
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
