package transfer

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"storypack/internal/cipher"
	"storypack/internal/devicemeta"
	"storypack/internal/faults"
)

const indexEntrySize = 12

var (
	requiredFiles = []string{"ni", "li", "ri", "si"}
	requiredDirs  = []string{"rf", "sf"}
)

// contentKeys resolves the keys of the content stored in dir. On later
// devices the content key comes from bt and must decipher ri; content this
// tool installed is also readable with the metadata key when bt cannot be
// deciphered with the loaded device key.
func (t Target) contentKeys(dir string) (cipher.KeySet, error) {
	identity := t.Identity
	if identity.Layout != devicemeta.LayoutLater {
		return identity.KeySet(nil)
	}
	bt, err := os.ReadFile(filepath.Join(dir, "bt"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cipher.KeySet{}, faults.Wrap(faults.ErrIOFailure, "transfer", "keys", "bt", err)
	}
	ri, err := os.ReadFile(filepath.Join(dir, "ri"))
	if err != nil {
		return cipher.KeySet{}, faults.Wrap(faults.ErrCorruptArchive, "transfer", "keys", "content has no ri file", err)
	}
	candidates := [][]byte{bt}
	if identity.GenuineDeviceKey {
		candidates = append(candidates, nil)
	}
	var lastErr error
	for _, blob := range candidates {
		keys, err := identity.KeySet(blob)
		if err != nil {
			return cipher.KeySet{}, err
		}
		ok, err := readable(dir, ri, keys)
		if ok {
			return keys, nil
		}
		lastErr = err
	}
	return cipher.KeySet{}, faults.Wrap(faults.ErrUnsupportedCapability, "transfer", "keys",
		"content keys do not match this device; pass the device key file", lastErr)
}

// readable reports whether keys decipher the content in dir: ri must start
// with a "000" entry and the first image it lists must hold a bitmap header.
// Index files shorter than a cipher block are stored in clear, so the image
// is what tells keys apart for them.
func readable(dir string, ri []byte, keys cipher.KeySet) (bool, error) {
	plain, err := keys.Decipher("ri", ri)
	if err != nil || !bytes.HasPrefix(plain, []byte("000")) || len(plain) < indexEntrySize {
		return false, err
	}
	entry := strings.TrimRight(string(plain[:indexEntrySize]), "\x00")
	rel := path.Join("rf", strings.ReplaceAll(entry, "\\", "/"))
	image, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil || len(image) < 16 {
		return true, nil
	}
	head, err := keys.Decipher(rel, image[:16])
	if err != nil {
		return false, err
	}
	return bytes.HasPrefix(head, []byte("BM")), nil
}

// Check verifies that dir holds a complete Lunii content: the node, list and
// index files, both asset directories and every asset the indexes name.
// Flam content is not checked. On legacy devices a bt that does not match ri
// is reported through badAuth and rewritten when repair is set. Content whose
// keys cannot be resolved on a later device is accepted as is.
func (t Target) Check(dir string, repair bool) (badAuth bool, err error) {
	if t.Identity.Family == devicemeta.FamilyFlam {
		return false, nil
	}
	for _, name := range requiredFiles {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			return false, faults.Wrap(faults.ErrCorruptArchive, "check", "layout", "missing "+name, err)
		}
	}

	keys, err := t.contentKeys(dir)
	if errors.Is(err, faults.ErrUnsupportedCapability) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if t.Identity.Layout == devicemeta.LayoutLegacy {
		if badAuth, err = t.checkAuthorization(dir, repair); err != nil {
			return badAuth, err
		}
	}

	for _, name := range requiredDirs {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.IsDir() {
			return badAuth, faults.Wrap(faults.ErrCorruptArchive, "check", "layout", "missing "+name+" directory", err)
		}
	}
	for index, assets := range map[string]string{"ri": "rf", "si": "sf"} {
		if err := checkAssets(dir, index, assets, keys); err != nil {
			return badAuth, err
		}
	}
	return badAuth, nil
}

func (t Target) checkAuthorization(dir string, repair bool) (bool, error) {
	ri, err := os.ReadFile(filepath.Join(dir, "ri"))
	if err != nil {
		return false, faults.Wrap(faults.ErrIOFailure, "check", "authorization", "ri", err)
	}
	bt, err := os.ReadFile(filepath.Join(dir, "bt"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, faults.Wrap(faults.ErrIOFailure, "check", "authorization", "bt", err)
	}
	if t.Identity.VerifyAuthorization(bt, ri) {
		return false, nil
	}
	if !repair {
		return true, nil
	}
	auth, err := t.Identity.Authorization(ri)
	if err != nil {
		return true, err
	}
	if err := os.WriteFile(filepath.Join(dir, "bt"), auth, 0o644); err != nil {
		return true, faults.Wrap(faults.ErrIOFailure, "check", "authorization", "write bt", err)
	}
	return true, nil
}

// checkAssets deciphers an index file and requires every fixed size entry
// it lists to exist below assets.
func checkAssets(dir, index, assets string, keys cipher.KeySet) error {
	data, err := os.ReadFile(filepath.Join(dir, index))
	if err != nil {
		return faults.Wrap(faults.ErrIOFailure, "check", "assets", index, err)
	}
	plain, err := keys.Decipher(index, data)
	if err != nil {
		return faults.Wrap(faults.ErrCorruptArchive, "check", "assets", "decipher "+index, err)
	}
	for off := 0; off+indexEntrySize <= len(plain); off += indexEntrySize {
		entry := strings.TrimRight(string(plain[off:off+indexEntrySize]), "\x00")
		if entry == "" {
			continue
		}
		rel := path.Join(assets, strings.ReplaceAll(entry, "\\", "/"))
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return faults.Wrap(faults.ErrCorruptArchive, "check", "assets", "missing "+rel, err)
		}
	}
	return nil
}
