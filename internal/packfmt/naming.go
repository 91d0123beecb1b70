package packfmt

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DeviceName maps an archive entry name to its on-device relative path:
// portable suffixes are stripped, long base names and identifier directory
// heads are upper-cased, separators become slashes.
func DeviceName(entry string) string {
	name := entry
	if len(name) >= len(".plain") && strings.EqualFold(name[len(name)-len(".plain"):], ".plain") {
		name = name[:len(name)-len(".plain")]
	}
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, ".mp3")
	name = strings.TrimSuffix(name, ".bmp")
	name = slashed(name)

	dir, base := path.Split(name)
	if len(base) >= 8 {
		name = dir + strings.ToUpper(base)
	}
	if len(strings.TrimSuffix(dir, "/")) >= 8 {
		head := name[:8]
		if !strings.Contains(head, "/") {
			name = strings.ToUpper(head) + name[8:]
		}
	}
	return name
}

// PortableName maps an on-device relative path to its name inside a portable
// archive.
func PortableName(rel string) string {
	rel = strings.TrimLeft(slashed(rel), "/")
	first, _, _ := strings.Cut(rel, "/")
	switch strings.ToLower(first) {
	case "rf":
		if first != rel {
			return rel + ".bmp"
		}
	case "sf":
		if first != rel {
			return rel + ".mp3"
		}
	}
	switch strings.ToLower(path.Base(rel)) {
	case "li", "ri", "si":
		return rel + ".plain"
	}
	return rel
}

// Exported reports whether an on-device file belongs in an exported archive.
func Exported(rel string) bool {
	switch path.Base(slashed(rel)) {
	case "bt", "md":
		return false
	}
	return true
}

const reservedChars = `/\?%*:|"<>`

// SecureFilename reduces name to ASCII characters safe in file names on every
// common file system.
func SecureFilename(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case r == 'Ł':
			r = 'L'
		case r == 'ł':
			r = 'l'
		case strings.ContainsRune(reservedChars, r):
			r = '_'
		}
		if r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ArchiveName returns the file name of an exported archive.
func ArchiveName(displayName, short string, flam bool) string {
	name := SecureFilename(displayName)
	if strings.TrimSpace(name) == "" {
		name = "story"
	}
	if flam {
		return name + "." + short + ".zip"
	}
	return name + "." + short + ".plain.pk"
}
