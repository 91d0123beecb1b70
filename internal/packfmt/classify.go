package packfmt

import (
	"bytes"
	"path"
	"strings"

	"storypack/internal/cipher"
	"storypack/internal/faults"
)

// Kind is how an archive must be imported.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPortablePlain archives hold fully deciphered files and a marker.
	KindPortablePlain
	// KindLegacyPartial archives hold on-device files below a directory
	// named by the identifier.
	KindLegacyPartial
	// KindGenericZip archives hold legacy ciphered files and a marker.
	KindGenericZip
	// KindThirdPartyIncompatible archives come from a creation tool whose
	// layout no storyteller accepts.
	KindThirdPartyIncompatible
)

func (k Kind) String() string {
	switch k {
	case KindPortablePlain:
		return "portable-plain"
	case KindLegacyPartial:
		return "legacy-partial"
	case KindGenericZip:
		return "generic-zip"
	case KindThirdPartyIncompatible:
		return "third-party-incompatible"
	default:
		return "unknown"
	}
}

// Generation is the cipher generation of ciphered archive entries.
type Generation int

const (
	GenerationNone Generation = iota
	GenerationLegacy
	GenerationLater
)

func (g Generation) String() string {
	switch g {
	case GenerationLegacy:
		return "legacy"
	case GenerationLater:
		return "later"
	default:
		return "none"
	}
}

// Origin is the product line or tool an archive was made for.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginLunii
	OriginFlam
	OriginStudio
)

func (o Origin) String() string {
	switch o {
	case OriginLunii:
		return "lunii"
	case OriginFlam:
		return "flam"
	case OriginStudio:
		return "studio"
	default:
		return "unknown"
	}
}

// Classification is the result of Classify.
type Classification struct {
	Kind       Kind
	Generation Generation
	Origin     Origin
}

// Suffixes recognized when scanning directories.
var Suffixes = []string{".plain.pk", ".v2.pk", ".v1.pk", ".pk", ".zip"}

// HasArchiveSuffix reports whether name carries a recognized suffix.
func HasArchiveSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range Suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// Classify opens the archive at p and classifies it.
func Classify(p string) (Classification, error) {
	a, err := Open(p)
	if err != nil {
		return Classification{}, err
	}
	defer a.Close()
	return ClassifyArchive(a)
}

// ClassifyArchive classifies an open archive from its file name first and its
// contents when the name is not conclusive.
func ClassifyArchive(a *Archive) (Classification, error) {
	lower := strings.ToLower(a.Path)
	origin := originOf(a.Names())
	switch {
	case strings.HasSuffix(lower, ".plain.pk"):
		return Classification{Kind: KindPortablePlain, Origin: OriginLunii}, nil
	case strings.HasSuffix(lower, ".v2.pk"), strings.HasSuffix(lower, ".v1.pk"):
		return Classification{Kind: KindLegacyPartial, Generation: GenerationLegacy, Origin: OriginLunii}, nil
	case strings.HasSuffix(lower, ".zip"):
		switch {
		case origin == OriginStudio:
			return Classification{Kind: KindThirdPartyIncompatible, Origin: OriginStudio}, nil
		case a.Has(MarkerEntry):
			return Classification{Kind: KindGenericZip, Generation: GenerationLegacy, Origin: OriginLunii}, nil
		case origin == OriginLunii:
			return Classification{Kind: KindLegacyPartial, Generation: GenerationLegacy, Origin: origin}, nil
		default:
			return Classification{Kind: KindLegacyPartial, Origin: origin}, nil
		}
	case strings.HasSuffix(lower, ".pk"):
		gen, err := generationOf(a)
		if err != nil {
			return Classification{}, err
		}
		return Classification{Kind: KindLegacyPartial, Generation: gen, Origin: OriginLunii}, nil
	}
	return Classification{}, faults.Wrap(faults.ErrCorruptArchive, "classify", "suffix", "unrecognized archive type "+path.Base(a.Path), nil)
}

// generationOf tells legacy from later ciphered entries: by the size of the
// authorization marker when present, otherwise by deciphering ri with the
// generic key.
func generationOf(a *Archive) (Generation, error) {
	if bt, ok := a.FindBase("bt"); ok {
		if bt.Size == 0x20 {
			return GenerationLater, nil
		}
		return GenerationLegacy, nil
	}
	for _, base := range []string{"li", "ni", "si"} {
		if _, ok := a.FindBase(base); !ok {
			return GenerationNone, faults.Wrap(faults.ErrCorruptArchive, "classify", "generation", "archive has no "+base+" entry", nil)
		}
	}
	ri, ok := a.FindBase("ri")
	if !ok {
		return GenerationNone, faults.Wrap(faults.ErrCorruptArchive, "classify", "generation", "archive has no ri entry", nil)
	}
	data, err := ri.Read()
	if err != nil {
		return GenerationNone, err
	}
	if LegacyIndexReadable(data) {
		return GenerationLegacy, nil
	}
	return GenerationLater, nil
}

// LegacyIndexReadable reports whether ri deciphers to a resource list with the
// generic key.
func LegacyIndexReadable(ri []byte) bool {
	plain, err := cipher.DecipherHeader(ri, cipher.GenericKey())
	if err != nil {
		return false
	}
	return bytes.HasPrefix(plain, []byte(`000\`))
}

// IsStudio reports whether names follow the STUdio creation tool layout.
func IsStudio(names []string) bool {
	hasStory, hasAssets := false, false
	for _, n := range names {
		if n == StudioEntry {
			hasStory = true
		}
		if strings.Contains(n, "assets/") {
			hasAssets = true
		}
	}
	return hasStory && hasAssets
}

// IsLunii reports whether names hold Lunii story files.
func IsLunii(names []string) bool {
	for _, n := range names {
		if n == MarkerEntry {
			return true
		}
		switch strings.ToLower(path.Base(slashed(n))) {
		case "ni", "nm":
			return true
		}
	}
	return false
}

func originOf(names []string) Origin {
	switch {
	case IsStudio(names):
		return OriginStudio
	case IsLunii(names):
		return OriginLunii
	default:
		return OriginFlam
	}
}
