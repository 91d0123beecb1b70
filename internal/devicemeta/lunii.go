package devicemeta

import (
	"encoding/binary"
	"encoding/hex"

	"storypack/internal/cipher"
	"storypack/internal/faults"
)

const (
	legacyMinSize     = 0x200
	legacyKeyOffset   = 0x100
	legacyKeySize     = 0x100
	laterMinSize      = 0x60
	laterSerialOffset = 0x1A
	laterSerialLen    = 14
	laterRegionOffset = 0x40
)

// Identify parses a Lunii ".md" metadata blob.
func Identify(md []byte) (*Identity, error) {
	if len(md) < 2 {
		return nil, faults.Wrap(faults.ErrCorruptMetadata, "metadata", "identify", "missing version tag", nil)
	}
	version := int(binary.LittleEndian.Uint16(md))
	switch {
	case version >= 6:
		return identifyLater(md, version)
	case version >= 1:
		return identifyLegacy(md, version)
	default:
		return nil, faults.Wrap(faults.ErrUnsupportedDevice, "metadata", "identify", "unrecognized metadata version 0", nil)
	}
}

func identifyLegacy(md []byte, version int) (*Identity, error) {
	if len(md) < legacyMinSize {
		return nil, faults.Wrap(faults.ErrCorruptMetadata, "metadata", "legacy layout",
			shortBlob(len(md), legacyMinSize), nil)
	}
	id := &Identity{
		Family:          FamilyLunii,
		Layout:          LayoutLegacy,
		MetadataVersion: version,
		Firmware: Firmware{
			Major: int(binary.LittleEndian.Uint16(md[6:])),
			Minor: int(binary.LittleEndian.Uint16(md[8:])),
			Patch: -1,
		},
		Serial: append([]byte(nil), md[10:18]...),
		USB: USBID{
			Vendor:  binary.LittleEndian.Uint16(md[18:]),
			Product: binary.LittleEndian.Uint16(md[20:]),
		},
	}
	switch id.USB {
	case USBLuniiV1, USBLuniiV1Fw2:
		id.Hardware = HardwareLuniiV1
	case USBLuniiV2V3:
		id.Hardware = HardwareLuniiV2
	default:
		id.Hardware = HardwareLuniiV1orV2
	}

	blob := md[legacyKeyOffset : legacyKeyOffset+legacyKeySize]
	dec, err := cipher.Transform(blob, cipher.GenericKey(), 0, len(blob), cipher.Decipher)
	if err != nil {
		return nil, err
	}
	// the device stores both key halves swapped
	key := make([]byte, 0, 16)
	key = append(key, dec[8:16]...)
	key = append(key, dec[0:8]...)
	id.DeviceKey = cipher.XXTEAKey(key)
	id.GenuineDeviceKey = true
	id.ContentFallback = cipher.GenericKey()
	return id, nil
}

func identifyLater(md []byte, version int) (*Identity, error) {
	if len(md) < laterMinSize {
		return nil, faults.Wrap(faults.ErrCorruptMetadata, "metadata", "later layout",
			shortBlob(len(md), laterMinSize), nil)
	}
	serial, err := hex.DecodeString(string(md[laterSerialOffset : laterSerialOffset+laterSerialLen]))
	if err != nil {
		return nil, faults.Wrap(faults.ErrCorruptMetadata, "metadata", "later layout", "serial is not hex", err)
	}
	id := &Identity{
		Family:          FamilyLunii,
		Layout:          LayoutLater,
		Hardware:        HardwareLuniiV3,
		MetadataVersion: version,
		Firmware: Firmware{
			Major: int(md[2]) - '0',
			Minor: int(md[4]) - '0',
			Patch: int(md[6]) - '0',
		},
		Serial:          serial,
		USB:             USBLuniiV2V3,
		DeviceKey:       cipher.AESKey(placeholderDeviceKey[:], placeholderDeviceIV[:]),
		ContentFallback: serialContentKey(serial),
	}

	region := md[laterRegionOffset : laterRegionOffset+authBlobSize]
	if version == 6 {
		id.AuthBlob = append([]byte(nil), region...)
		return id, nil
	}

	// Version 7 onwards stores the forged content key directly and the
	// authorization marker is derived from the serial.
	id.ContentFallback = cipher.AESKey(reversed(region[:16]), reversed(region[16:32]))
	hexSerial := []byte(hex.EncodeToString(serial))
	auth := make([]byte, 0, len(hexSerial)+10+8)
	auth = append(auth, hexSerial...)
	auth = append(auth, make([]byte, 10)...)
	auth = append(auth, hexSerial[:8]...)
	id.AuthBlob = auth
	return id, nil
}

// serialContentKey forges the content key used before any authorization blob
// has been read: reverse(hex(serial) || 00 00) and reverse(8 x 00 || hex(serial)[:8]).
func serialContentKey(serial []byte) cipher.Key {
	hexSerial := []byte(hex.EncodeToString(serial))
	key := append(append([]byte(nil), hexSerial...), 0, 0)
	iv := append(make([]byte, 8), hexSerial[:8]...)
	return cipher.AESKey(reversed(key), reversed(iv))
}

// placeholder pair used until a key file supplies the real device key
var (
	placeholderDeviceKey [16]byte
	placeholderDeviceIV  [16]byte
)
