package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

// Well-known content identifiers used across tests.
var (
	StoryA = uuid.MustParse("9D9521E5-84AC-4CC8-9B09-8D0AFFB5D68A")
	StoryB = uuid.MustParse("22137B29-8646-4335-8069-4A4C9A2D7E89")
	StoryC = uuid.MustParse("9C836C24-34C4-4CC1-B9E6-D8646C8D9CF1")
)

// NewLuniiRoot creates a fake Lunii mount holding md as its ".md" file.
func NewLuniiRoot(t testing.TB, md []byte) string {
	t.Helper()
	root := t.TempDir()
	WriteFile(t, filepath.Join(root, ".md"), md)
	if err := os.MkdirAll(filepath.Join(root, ".content"), 0o755); err != nil {
		t.Fatalf("mkdir content: %v", err)
	}
	return root
}

// NewFlamRoot creates a fake Flam mount holding mdf as its ".mdf" file.
func NewFlamRoot(t testing.TB, mdf []byte) string {
	t.Helper()
	root := t.TempDir()
	WriteFile(t, filepath.Join(root, ".mdf"), mdf)
	if err := os.MkdirAll(filepath.Join(root, "str"), 0o755); err != nil {
		t.Fatalf("mkdir str: %v", err)
	}
	return root
}

// WritePackIndex writes ids as a raw ".pi" index under root.
func WritePackIndex(t testing.TB, root string, ids ...uuid.UUID) {
	t.Helper()
	data := make([]byte, 0, 16*len(ids))
	for _, id := range ids {
		data = append(data, id[:]...)
	}
	WriteFile(t, filepath.Join(root, ".pi"), data)
}
