package packfmt

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"storypack/internal/faults"
)

// Well-known entry names.
const (
	MarkerEntry    = "uuid.bin"
	MetadataEntry  = "_metadata.json"
	ThumbnailEntry = "_thumbnail.png"
	StudioEntry    = "story.json"
)

// Entry is one file stored in an archive.
type Entry struct {
	Name string
	Size int64
	file *zip.File
}

// Read returns the uncompressed entry bytes.
func (e Entry) Read() ([]byte, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, faults.Wrap(faults.ErrCorruptArchive, "archive", "read", e.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, faults.Wrap(faults.ErrCorruptArchive, "archive", "read", e.Name, err)
	}
	return data, nil
}

// Archive is an open zip container.
type Archive struct {
	Path string
	Size int64

	rc      *zip.ReadCloser
	entries []Entry
	byName  map[string]int
}

// Open opens the zip container at p. Directory entries are dropped.
func Open(p string) (*Archive, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIOFailure, "archive", "stat", p, err)
	}
	if info.IsDir() {
		return nil, faults.Wrap(faults.ErrCorruptArchive, "archive", "open", p+" is a directory", nil)
	}
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, faults.Wrap(faults.ErrCorruptArchive, "archive", "open", p, err)
	}
	a := &Archive{Path: p, Size: info.Size(), rc: rc, byName: make(map[string]int)}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		a.byName[f.Name] = len(a.entries)
		a.entries = append(a.entries, Entry{Name: f.Name, Size: int64(f.UncompressedSize64), file: f})
	}
	return a, nil
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Entries returns the file entries in archive order.
func (a *Archive) Entries() []Entry {
	return append([]Entry(nil), a.entries...)
}

// Names returns the file entry names in archive order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.Name
	}
	return names
}

// Has reports whether an entry named name exists.
func (a *Archive) Has(name string) bool {
	_, ok := a.byName[name]
	return ok
}

// Lookup returns the entry named name.
func (a *Archive) Lookup(name string) (Entry, bool) {
	i, ok := a.byName[name]
	if !ok {
		return Entry{}, false
	}
	return a.entries[i], true
}

// Read returns the bytes of the entry named name.
func (a *Archive) Read(name string) ([]byte, error) {
	e, ok := a.Lookup(name)
	if !ok {
		return nil, faults.Wrap(faults.ErrCorruptArchive, "archive", "read", "missing entry "+name, nil)
	}
	return e.Read()
}

// FindBase returns the first entry whose base name is base, compared without
// case.
func (a *Archive) FindBase(base string) (Entry, bool) {
	for _, e := range a.entries {
		if strings.EqualFold(path.Base(slashed(e.Name)), base) {
			return e, true
		}
	}
	return Entry{}, false
}

// Marker returns the identifier stored in the 16-byte marker entry.
func (a *Archive) Marker() (uuid.UUID, error) {
	if !a.Has(MarkerEntry) {
		return uuid.Nil, faults.Wrap(faults.ErrCorruptArchive, "archive", "marker", "no "+MarkerEntry+" entry", nil)
	}
	data, err := a.Read(MarkerEntry)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromBytes(data)
	if err != nil {
		return uuid.Nil, faults.Wrap(faults.ErrCorruptArchive, "archive", "marker", fmt.Sprintf("%s holds %d bytes", MarkerEntry, len(data)), err)
	}
	return id, nil
}

// DirIdentifier returns the identifier named by the top-level directory of
// the archive. The name is either hyphenated or 32 hex digits, and every
// entry must live below it.
func (a *Archive) DirIdentifier() (uuid.UUID, string, error) {
	if len(a.entries) == 0 {
		return uuid.Nil, "", faults.Wrap(faults.ErrCorruptArchive, "archive", "identifier", "archive is empty", nil)
	}
	dir, _, _ := strings.Cut(strings.TrimLeft(slashed(a.entries[0].Name), "/"), "/")
	id, err := ParseIdentifier(dir)
	if err != nil {
		return uuid.Nil, "", faults.Wrap(faults.ErrCorruptArchive, "archive", "identifier", "no identifier directory in archive", err)
	}
	for _, e := range a.entries[1:] {
		name := strings.TrimLeft(slashed(e.Name), "/")
		if !strings.HasPrefix(name, dir+"/") {
			return uuid.Nil, "", faults.Wrap(faults.ErrCorruptArchive, "archive", "identifier",
				fmt.Sprintf("entry %s is outside %s", e.Name, dir), nil)
		}
	}
	return id, dir, nil
}

// ParseIdentifier accepts the hyphenated form or 32 bare hex digits.
func ParseIdentifier(s string) (uuid.UUID, error) {
	if len(s) < 16 {
		return uuid.Nil, fmt.Errorf("%q is too short for an identifier", s)
	}
	if !strings.Contains(s, "-") {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return uuid.Nil, err
		}
		return uuid.FromBytes(raw)
	}
	return uuid.Parse(s)
}

// SafeRelative cleans an entry name into a slash separated relative path and
// rejects names escaping their destination.
func SafeRelative(name string) (string, error) {
	clean := path.Clean(slashed(name))
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", faults.Wrap(faults.ErrCorruptArchive, "archive", "entry", "unsafe entry name "+name, nil)
	}
	return clean, nil
}

func slashed(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}
