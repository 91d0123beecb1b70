package devicemeta

import (
	"encoding/hex"
	"fmt"
	"strings"

	"storypack/internal/cipher"
	"storypack/internal/faults"
)

// Family is a storyteller product line.
type Family int

const (
	FamilyLunii Family = iota + 1
	FamilyFlam
)

func (f Family) String() string {
	switch f {
	case FamilyLunii:
		return "lunii"
	case FamilyFlam:
		return "flam"
	default:
		return "unknown"
	}
}

// Layout is the on-device metadata and cipher generation.
type Layout int

const (
	// LayoutLegacy devices (Lunii v1/v2) use XXTEA.
	LayoutLegacy Layout = iota + 1
	// LayoutLater devices (Lunii v3) use AES-CBC.
	LayoutLater
	// LayoutFlam devices store content in clear.
	LayoutFlam
)

func (l Layout) String() string {
	switch l {
	case LayoutLegacy:
		return "legacy"
	case LayoutLater:
		return "later"
	case LayoutFlam:
		return "flam"
	default:
		return "unknown"
	}
}

// Hardware is the detected hardware revision.
type Hardware string

const (
	HardwareLuniiV1      Hardware = "lunii-v1"
	HardwareLuniiV2      Hardware = "lunii-v2"
	HardwareLuniiV1orV2  Hardware = "lunii-v1/v2"
	HardwareLuniiV3      Hardware = "lunii-v3"
	HardwareFlamV1       Hardware = "flam-v1"
	HardwareUnrecognized Hardware = "unrecognized"
)

// USBID is a vendor/product pair.
type USBID struct {
	Vendor  uint16
	Product uint16
}

func (u USBID) String() string {
	return fmt.Sprintf("%04x:%04x", u.Vendor, u.Product)
}

var (
	USBLuniiV1        = USBID{0x0c45, 0x6820}
	USBLuniiV1Fw2     = USBID{0x0c45, 0x6840}
	USBLuniiV2V3      = USBID{0x0483, 0xa341}
	knownStorytellers = []USBID{USBLuniiV1, USBLuniiV1Fw2, USBLuniiV2V3}
)

// KnownUSBIDs lists the USB identifiers of supported storytellers.
func KnownUSBIDs() []USBID {
	return append([]USBID(nil), knownStorytellers...)
}

// Firmware holds the firmware version as reported by the metadata file.
type Firmware struct {
	Major int
	Minor int
	Patch int
	// Main and Comm are the Flam firmware strings.
	Main string
	Comm string
}

func (f Firmware) String() string {
	if f.Main != "" || f.Comm != "" {
		return fmt.Sprintf("main %s, comm %s", f.Main, f.Comm)
	}
	if f.Patch >= 0 {
		return fmt.Sprintf("%d.%d.%d", f.Major, f.Minor, f.Patch)
	}
	return fmt.Sprintf("%d.%d", f.Major, f.Minor)
}

// Identity is everything known about a device after parsing its metadata.
// Key material may be upgraded once through LoadKeys; it is otherwise
// immutable.
type Identity struct {
	Family          Family
	Layout          Layout
	Hardware        Hardware
	MetadataVersion int
	Firmware        Firmware
	Serial          []byte
	USB             USBID

	// DeviceKey protects authorization markers.
	DeviceKey cipher.Key
	// GenuineDeviceKey is false while a later-layout device runs on the
	// compiled-in placeholder pair.
	GenuineDeviceKey bool
	// KeyFile is the path DeviceKey was loaded from, if any.
	KeyFile string
	// ContentFallback is used for content whose authorization blob cannot be
	// read with the device key.
	ContentFallback cipher.Key
	// AuthBlob is the authorization marker written for imported content on
	// later-layout devices.
	AuthBlob []byte
}

// SerialString returns the serial as upper-case hex without leading zeros.
func (id *Identity) SerialString() string {
	s := strings.TrimLeft(strings.ToUpper(hex.EncodeToString(id.Serial)), "0")
	if s == "" {
		return "0"
	}
	return s
}

// ContentKey resolves the key protecting one content. When a genuine device
// key is known and authBlob holds at least 32 bytes, the blob is deciphered
// and its byte-reversed halves become key and iv. The boolean reports whether
// the resolved key came from the blob rather than the fallback.
func (id *Identity) ContentKey(authBlob []byte) (cipher.Key, bool, error) {
	switch id.Layout {
	case LayoutLegacy:
		return cipher.GenericKey(), false, nil
	case LayoutLater:
	default:
		return cipher.Key{}, false, nil
	}
	if !id.GenuineDeviceKey || len(authBlob) < authBlobSize {
		return id.ContentFallback, false, nil
	}
	plain, err := cipher.Transform(authBlob[:authBlobSize], id.DeviceKey, 0, authBlobSize, cipher.Decipher)
	if err != nil {
		return cipher.Key{}, false, err
	}
	return cipher.AESKey(reversed(plain[:16]), reversed(plain[16:32])), true, nil
}

// KeySet returns the keys used for one content given its authorization blob,
// which may be nil.
func (id *Identity) KeySet(authBlob []byte) (cipher.KeySet, error) {
	content, _, err := id.ContentKey(authBlob)
	if err != nil {
		return cipher.KeySet{}, err
	}
	if id.Layout == LayoutFlam {
		return cipher.KeySet{}, nil
	}
	return cipher.KeySet{Device: id.DeviceKey, Content: content}, nil
}

// Authorization builds the authorization marker for newly imported content.
// Legacy devices bind content by enciphering the first 0x40 bytes of its
// on-device ri file with the device key; later devices reuse AuthBlob.
func (id *Identity) Authorization(cipheredRI []byte) ([]byte, error) {
	switch id.Layout {
	case LayoutLegacy:
		if len(cipheredRI) == 0 {
			return nil, faults.Wrap(faults.ErrCorruptArchive, "authorization", "legacy", "content has no ri entry", nil)
		}
		head := cipheredRI
		if len(head) > legacyAuthSize {
			head = head[:legacyAuthSize]
		}
		return cipher.Transform(head, id.DeviceKey, 0, legacyAuthSize, cipher.Encipher)
	case LayoutLater:
		return append([]byte(nil), id.AuthBlob...), nil
	default:
		return nil, nil
	}
}

// VerifyAuthorization reports whether bt matches the content's ri on a legacy
// device. Later devices cannot be verified without the content keys and
// always report true.
func (id *Identity) VerifyAuthorization(bt, cipheredRI []byte) bool {
	if id.Layout != LayoutLegacy {
		return true
	}
	want, err := id.Authorization(cipheredRI)
	if err != nil {
		return false
	}
	return string(want) == string(bt)
}

const (
	authBlobSize   = 0x20
	legacyAuthSize = 0x40
)

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
