package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"storypack/internal/cipher"
)

// Entry is one archive member.
type Entry struct {
	Name string
	Data []byte
}

// WriteZip writes entries, in order, to a new zip archive at path.
func WriteZip(t testing.TB, path string, entries []Entry) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ReadZip returns every file entry of the archive at path keyed by name.
func ReadZip(t testing.TB, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip %s: %v", path, err)
	}
	defer zr.Close()
	out := map[string][]byte{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		var data bytes.Buffer
		if _, err := data.ReadFrom(rc); err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		rc.Close()
		out[f.Name] = data.Bytes()
	}
	return out
}

// PlainStory returns the entries of a portable (fully deciphered) story: the
// node index, the list/resource/sound indexes, one image and one sound.
func PlainStory() []Entry {
	ri := []byte(`000\AAAABBBB`)
	si := []byte(`000\CCCCDDDD`)
	return []Entry{
		{Name: "ni", Data: Pattern(300, 1)},
		{Name: "li.plain", Data: Pattern(40, 2)},
		{Name: "ri.plain", Data: ri},
		{Name: "si.plain", Data: si},
		{Name: "rf/000/AAAABBBB.bmp", Data: append([]byte("BM"), Pattern(900, 3)...)},
		{Name: "sf/000/CCCCDDDD.mp3", Data: append([]byte("ID3"), Pattern(1400, 4)...)},
	}
}

// PortableArchive writes a ".plain.pk" archive for id (16 raw bytes) with the
// PlainStory entries and any extra entries.
func PortableArchive(t testing.TB, dir, name string, id []byte, extra ...Entry) string {
	t.Helper()
	entries := append([]Entry{{Name: "uuid.bin", Data: id}}, PlainStory()...)
	entries = append(entries, extra...)
	return WriteZip(t, filepath.Join(dir, name), entries)
}

// LegacyStory returns the PlainStory files in legacy on-device form (header
// ciphered with the generic key, device names) below prefix, plus a bt entry
// of btSize bytes when btSize is positive.
func LegacyStory(t testing.TB, prefix string, btSize int) []Entry {
	t.Helper()
	names := []string{"ni", "li", "ri", "si", "rf/000/AAAABBBB", "sf/000/CCCCDDDD"}
	var out []Entry
	for i, e := range PlainStory() {
		data := e.Data
		if names[i] != "ni" {
			var err error
			data, err = cipher.EncipherHeader(e.Data, cipher.GenericKey())
			if err != nil {
				t.Fatalf("encipher %s: %v", names[i], err)
			}
		}
		out = append(out, Entry{Name: prefix + names[i], Data: data})
	}
	if btSize > 0 {
		out = append(out, Entry{Name: prefix + "bt", Data: Pattern(btSize, 9)})
	}
	return out
}
