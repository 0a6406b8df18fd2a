// Package media names uploaded files for the media store.
package media

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Prefixes of the two media namespaces inside the store.
const (
	AudioPrefix = "songs"
	CoverPrefix = "cover_arts"
)

var (
	disallowed  = regexp.MustCompile(`[^A-Za-z0-9.\-_]`)
	underscores = regexp.MustCompile(`_{2,}`)
)

// SanitizeFilename strips diacritics and replaces every character outside
// [A-Za-z0-9.-_] with an underscore, collapsing runs and trimming them at
// both ends. "Canción (Live)!.mp3" becomes "Cancion_Live_.mp3".
func SanitizeFilename(name string) string {
	// 只保留文件名部分, 去掉客户端可能带上的目录
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}

	out := disallowed.ReplaceAllString(stripped, "_")
	out = underscores.ReplaceAllString(out, "_")
	out = strings.Trim(out, "_")
	if out == "" || out == "." || out == ".." {
		return "file"
	}
	return out
}

// StorageName prefixes the sanitized name with the upload time in unix
// milliseconds.
func StorageName(now time.Time, original string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + SanitizeFilename(original)
}

// AudioKey returns the store key for an uploaded audio file, e.g.
// songs/1700000000000_a.mp3.
func AudioKey(now time.Time, original string) string {
	return AudioPrefix + "/" + StorageName(now, original)
}

// CoverKey returns the store key for an uploaded cover image.
func CoverKey(now time.Time, original string) string {
	return CoverPrefix + "/" + StorageName(now, original)
}
