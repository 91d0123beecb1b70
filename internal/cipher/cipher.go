package cipher

import (
	"fmt"

	"storypack/internal/faults"
)

// HeaderWindow is the number of leading bytes ciphered in media files.
const HeaderWindow = 512

// Scheme selects the block cipher family.
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeXXTEA
	SchemeAES
)

func (s Scheme) String() string {
	switch s {
	case SchemeXXTEA:
		return "xxtea"
	case SchemeAES:
		return "aes-cbc"
	default:
		return "none"
	}
}

// Direction selects encipherment or decipherment.
type Direction int

const (
	Encipher Direction = iota
	Decipher
)

// Key is the material for one scheme. IV is only used by SchemeAES.
type Key struct {
	Scheme Scheme
	Key    []byte
	IV     []byte
}

// IsZero reports whether k carries no cipher, meaning data passes through.
func (k Key) IsZero() bool {
	return k.Scheme == SchemeNone || len(k.Key) == 0
}

// XXTEAKey builds a legacy key.
func XXTEAKey(key []byte) Key {
	return Key{Scheme: SchemeXXTEA, Key: clone(key)}
}

// AESKey builds a later-generation key.
func AESKey(key, iv []byte) Key {
	return Key{Scheme: SchemeAES, Key: clone(key), IV: clone(iv)}
}

var genericKeyWords = [4]uint32{0x91BD7A0A, 0xA75440A9, 0xBBD49D6C, 0xE0DCC0E3}

// GenericKey returns the key shared by every legacy device, stored in each
// device's external flash.
func GenericKey() Key {
	raw := make([]byte, 16)
	for i, w := range genericKeyWords {
		putUint32(raw[i*4:], w)
	}
	return XXTEAKey(raw)
}

// Transform applies dir over buf[offset:offset+length] and returns a new
// buffer of the same length. offset and length are clamped to the buffer. The
// effective window is truncated to the scheme's block size; windows too small
// for one block pass through unchanged.
func Transform(buf []byte, key Key, offset, length int, dir Direction) ([]byte, error) {
	out := clone(buf)
	if key.IsZero() {
		return out, nil
	}
	start, end := clampWindow(len(out), offset, length)
	window := out[start:end]

	var err error
	switch key.Scheme {
	case SchemeXXTEA:
		err = xxteaWindow(window, key.Key, dir)
	case SchemeAES:
		err = aesWindow(window, key.Key, key.IV, dir)
	default:
		err = fmt.Errorf("unknown scheme %d", key.Scheme)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrCorruptMetadata, "cipher", key.Scheme.String(), "invalid key material", err)
	}
	return out, nil
}

// EncipherHeader enciphers the first HeaderWindow bytes of buf.
func EncipherHeader(buf []byte, key Key) ([]byte, error) {
	return Transform(buf, key, 0, HeaderWindow, Encipher)
}

// DecipherHeader deciphers the first HeaderWindow bytes of buf.
func DecipherHeader(buf []byte, key Key) ([]byte, error) {
	return Transform(buf, key, 0, HeaderWindow, Decipher)
}

func clampWindow(size, offset, length int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > size {
		offset = size
	}
	if length < 0 {
		length = 0
	}
	if length > size-offset {
		length = size - offset
	}
	return offset, offset + length
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
