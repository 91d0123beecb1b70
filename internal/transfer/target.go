package transfer

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"storypack/internal/contentindex"
	"storypack/internal/devicemeta"
)

// Target is the device a pipeline works against.
type Target struct {
	Root     string
	Identity *devicemeta.Identity
	Index    *contentindex.Index
}

// ContentRoot is the directory holding every content directory.
func (t Target) ContentRoot() string {
	if t.Identity.Family == devicemeta.FamilyFlam {
		return filepath.Join(t.Root, "str")
	}
	return filepath.Join(t.Root, ".content")
}

// ContentDir is the on-device directory of id: the short identifier on Lunii
// devices, the full lower-case identifier on Flam devices.
func (t Target) ContentDir(id uuid.UUID) string {
	return filepath.Join(t.ContentRoot(), t.DirName(id))
}

// DirName is the base name of the content directory of id.
func (t Target) DirName(id uuid.UUID) string {
	if t.Identity.Family == devicemeta.FamilyFlam {
		return strings.ToLower(id.String())
	}
	return contentindex.ShortID(id)
}
