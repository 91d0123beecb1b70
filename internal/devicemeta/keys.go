package devicemeta

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"storypack/internal/cipher"
	"storypack/internal/faults"
)

// ErrKeyFileMismatch reports an explicit key file whose name designates
// another device.
var ErrKeyFileMismatch = errors.New("key file belongs to another device")

// KeyFileName returns the key file name expected for a serial string.
func KeyFileName(serial string) string {
	return serial + ".keys"
}

// LoadKeys upgrades a later-layout identity with the real device key pair.
// An explicit path takes precedence over <dir>/<SERIAL>.keys. It returns
// false without error when no key file exists. Key files hold key||iv either
// as 32 raw bytes or as 64 hex characters.
func (id *Identity) LoadKeys(dir, explicit string) (bool, error) {
	if id.Layout != LayoutLater {
		return false, nil
	}
	candidates := make([]string, 0, 2)
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		stem := strings.TrimSuffix(filepath.Base(explicit), filepath.Ext(explicit))
		if isHex(stem) && !strings.EqualFold(strings.TrimLeft(stem, "0"), id.SerialString()) {
			return false, fmt.Errorf("%w: %s is named for %s, device is %s", ErrKeyFileMismatch, explicit, stem, id.SerialString())
		}
		candidates = append(candidates, explicit)
	}
	if dir = strings.TrimSpace(dir); dir != "" {
		candidates = append(candidates, filepath.Join(dir, KeyFileName(id.SerialString())))
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return false, faults.Wrap(faults.ErrIOFailure, "keys", "read", path, err)
		}
		key, iv, err := parseKeyFile(data)
		if err != nil {
			return false, faults.Wrap(faults.ErrCorruptMetadata, "keys", "parse", path, err)
		}
		id.DeviceKey = cipher.AESKey(key, iv)
		id.GenuineDeviceKey = true
		id.KeyFile = path
		return true, nil
	}
	return false, nil
}

func parseKeyFile(data []byte) ([]byte, []byte, error) {
	if len(data) == 32 {
		return data[:16], data[16:], nil
	}
	text := strings.Join(strings.Fields(string(data)), "")
	if len(text) == 64 && isHex(text) {
		raw, _ := hex.DecodeString(text)
		return raw[:16], raw[16:], nil
	}
	return nil, nil, fmt.Errorf("expected 32 raw bytes or 64 hex characters, got %d bytes", len(data))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func shortBlob(got, want int) string {
	return fmt.Sprintf("blob is %d bytes, need at least %d", got, want)
}
