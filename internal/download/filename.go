package download

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// FallbackFilename replaces names that sanitize to nothing.
	FallbackFilename = "attachment"

	// MaxFilenameLength is the sanitized name limit in characters.
	MaxFilenameLength = 200

	// maxNameBytes keeps a name plus a "_n" collision suffix under the
	// 255-byte component limit of common filesystems.
	maxNameBytes = 255 - 8

	hostileChars = `<>:"/\|?*`
)

// SanitizeFilename normalizes an untrusted filename: filesystem-hostile
// characters, C0 controls and whitespace become "_", runs of "_" collapse to
// one, the result is cut to MaxFilenameLength characters and stripped of
// leading and trailing "_". Names that end up empty, "." or ".." become
// FallbackFilename. SanitizeFilename is idempotent.
//
// The cut happens before the strip, so a name with a leading "_" can end up
// one character short of the limit. Stripping first would let a second pass
// cut again and break idempotence.
func SanitizeFilename(raw string) string {
	if s := sanitize(raw); s != "" {
		return s
	}
	return FallbackFilename
}

// sanitize is SanitizeFilename without the fallback; it returns "" when
// nothing usable remains.
func sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	lastUnderscore := false
	for _, r := range raw {
		if r < 0x20 || unicode.IsSpace(r) || strings.ContainsRune(hostileChars, r) {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}

	out := []rune(b.String())
	if len(out) > MaxFilenameLength {
		out = out[:MaxFilenameLength]
	}
	name := strings.Trim(string(out), "_")

	if name == "." || name == ".." {
		return ""
	}
	return name
}

// splitName splits a base name into name and extension. A leading dot does
// not start an extension, so ".env" has no extension.
func splitName(base string) (string, string) {
	ext := filepath.Ext(base)
	if ext == base {
		return base, ""
	}
	return strings.TrimSuffix(base, ext), ext
}

// keepExtension restores the extension of the declared name raw when the
// length cut in sanitize dropped it. name is the sanitized form of raw.
func keepExtension(name, raw string) string {
	_, ext := splitName(raw)
	ext = strings.TrimRight(sanitize(ext), "_")
	if ext == "" || ext == "." || strings.HasSuffix(name, ext) {
		return name
	}
	n := utf8.RuneCountInString(ext)
	if n > MaxFilenameLength/4 {
		return name
	}
	stem := []rune(name)
	if len(stem) > MaxFilenameLength-n {
		stem = stem[:MaxFilenameLength-n]
	}
	return strings.TrimRight(string(stem), "_.") + ext
}

// fitName shortens name to maxNameBytes bytes. The stem is cut on a rune
// boundary and the extension is kept unless it alone is unreasonably long.
func fitName(name string) string {
	if len(name) <= maxNameBytes {
		return name
	}
	stem, ext := splitName(name)
	if len(ext) > maxNameBytes/4 {
		stem, ext = name, ""
	}
	cut := maxNameBytes - len(ext)
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	return stem[:cut] + ext
}

// ResolveUniquePath returns path if nothing exists there, otherwise the first
// free "{name}_{n}{ext}" for n = 1, 2, ... in the same directory. It never
// creates the file. Existence is checked with Lstat, so dangling symlinks
// count as taken.
func ResolveUniquePath(path string) (string, error) {
	free, err := isFree(path)
	if err != nil || free {
		return path, err
	}

	dir := filepath.Dir(path)
	name, ext := splitName(filepath.Base(path))
	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, n, ext))
		free, err := isFree(candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
}

func isFree(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}

// validateCustomFilename accepts a caller-chosen name only if it is a single
// path element.
func validateCustomFilename(name string) error {
	switch {
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidFilename, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidFilename, name)
	}
	return nil
}
