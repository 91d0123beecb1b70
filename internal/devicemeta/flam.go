package devicemeta

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"storypack/internal/faults"
)

const (
	flamFirmwareOffset = 2
	flamFirmwareLen    = 48
	flamSerialLen      = 24
	flamMinSize        = flamFirmwareOffset + flamFirmwareLen + flamSerialLen + 4
)

// IdentifyFlam parses a Flam ".mdf" metadata blob.
func IdentifyFlam(mdf []byte) (*Identity, error) {
	if len(mdf) < 2 {
		return nil, faults.Wrap(faults.ErrCorruptMetadata, "metadata", "identify flam", "missing version tag", nil)
	}
	version := int(binary.LittleEndian.Uint16(mdf))
	if version != 1 {
		return nil, faults.Wrap(faults.ErrUnsupportedDevice, "metadata", "identify flam",
			"unrecognized metadata version", nil)
	}
	if len(mdf) < flamMinSize {
		return nil, faults.Wrap(faults.ErrCorruptMetadata, "metadata", "identify flam",
			shortBlob(len(mdf), flamMinSize), nil)
	}

	fw := string(bytes.Trim(mdf[flamFirmwareOffset:flamFirmwareOffset+flamFirmwareLen], "\x00"))
	fw = strings.NewReplacer("main: ", "", "comm: ", "").Replace(fw)
	lines := strings.Split(strings.TrimSpace(fw), "\n")
	firmware := Firmware{Patch: -1}
	if len(lines) > 0 {
		firmware.Main = strings.TrimSpace(strings.SplitN(lines[0], "-", 2)[0])
	}
	if len(lines) > 1 {
		firmware.Comm = strings.TrimSpace(strings.SplitN(lines[1], "-", 2)[0])
	}

	serialStart := flamFirmwareOffset + flamFirmwareLen
	rawSerial := strings.TrimRight(string(mdf[serialStart:serialStart+flamSerialLen]), "\x00")
	serial, err := hex.DecodeString(rawSerial)
	if err != nil {
		return nil, faults.Wrap(faults.ErrCorruptMetadata, "metadata", "identify flam", "serial is not hex", err)
	}
	usbStart := serialStart + flamSerialLen
	return &Identity{
		Family:          FamilyFlam,
		Layout:          LayoutFlam,
		Hardware:        HardwareFlamV1,
		MetadataVersion: version,
		Firmware:        firmware,
		Serial:          serial,
		USB: USBID{
			Vendor:  binary.LittleEndian.Uint16(mdf[usbStart:]),
			Product: binary.LittleEndian.Uint16(mdf[usbStart+2:]),
		},
	}, nil
}
