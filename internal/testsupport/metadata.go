package testsupport

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"

	"storypack/internal/cipher"
)

// LegacySerial is the serial embedded by LegacyMetadata.
var LegacySerial = []byte{0x00, 0x00, 0x23, 0x02, 0xF0, 0x12, 0x34, 0x56}

// LegacyDeviceKey is the device key recovered from LegacyMetadata.
var LegacyDeviceKey = []byte{
	0x10, 0x21, 0x32, 0x43, 0x54, 0x65, 0x76, 0x87,
	0x98, 0xA9, 0xBA, 0xCB, 0xDC, 0xED, 0xFE, 0x0F,
}

// LegacyMetadata builds a legacy-layout ".md" blob (firmware 2.22, Lunii v2
// USB ids) whose device-key blob deciphers to LegacyDeviceKey.
func LegacyMetadata(t testing.TB) []byte {
	t.Helper()
	md := make([]byte, 0x200)
	binary.LittleEndian.PutUint16(md[0:], 3)
	binary.LittleEndian.PutUint16(md[6:], 2)
	binary.LittleEndian.PutUint16(md[8:], 22)
	copy(md[10:18], LegacySerial)
	binary.LittleEndian.PutUint16(md[18:], 0x0483)
	binary.LittleEndian.PutUint16(md[20:], 0xa341)

	plain := make([]byte, 0x100)
	copy(plain[0:8], LegacyDeviceKey[8:16])
	copy(plain[8:16], LegacyDeviceKey[0:8])
	blob, err := cipher.Transform(plain, cipher.GenericKey(), 0, len(plain), cipher.Encipher)
	if err != nil {
		t.Fatalf("encipher device key blob: %v", err)
	}
	copy(md[0x100:], blob)
	return md
}

// LaterSerialHex is the serial embedded by LaterMetadata.
const LaterSerialHex = "0023A2F1B2C3D4"

// LaterMetadata builds a later-layout ".md" blob with firmware 3.1.4 and the
// given 32-byte region at 0x40.
func LaterMetadata(t testing.TB, version int, region []byte) []byte {
	t.Helper()
	if len(region) != 32 {
		t.Fatalf("region must be 32 bytes, got %d", len(region))
	}
	md := make([]byte, 0x60)
	binary.LittleEndian.PutUint16(md[0:], uint16(version))
	md[2], md[3], md[4], md[5], md[6] = '3', '.', '1', '.', '4'
	copy(md[0x1A:], LaterSerialHex)
	copy(md[0x40:], region)
	return md
}

// FlamSerialHex is the serial embedded by FlamMetadata.
const FlamSerialHex = "0A1B2C3D4E5F60718293A4B5"

// FlamMetadata builds a Flam ".mdf" blob.
func FlamMetadata(t testing.TB) []byte {
	t.Helper()
	mdf := make([]byte, 2+48+24+4)
	binary.LittleEndian.PutUint16(mdf[0:], 1)
	copy(mdf[2:50], "main: 1.2.3-rc1\ncomm: 0.9.1-b")
	copy(mdf[50:74], FlamSerialHex)
	binary.LittleEndian.PutUint16(mdf[74:], 0x0483)
	binary.LittleEndian.PutUint16(mdf[76:], 0xa342)
	return mdf
}

// KeyFileHex renders key||iv as a hex key file body.
func KeyFileHex(key, iv []byte) []byte {
	return []byte(strings.ToUpper(hex.EncodeToString(append(append([]byte(nil), key...), iv...))) + "\n")
}
