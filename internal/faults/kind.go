package faults

import "errors"

// Kind labels the taxonomy class of an error.
type Kind string

const (
	KindNone                  Kind = ""
	KindCorruptMetadata       Kind = "corrupt_metadata"
	KindUnsupportedDevice     Kind = "unsupported_device"
	KindCorruptArchive        Kind = "corrupt_archive"
	KindNotFound              Kind = "not_found"
	KindAmbiguous             Kind = "ambiguous"
	KindAlreadyInstalled      Kind = "already_installed"
	KindInsufficientSpace     Kind = "insufficient_space"
	KindUnsupportedCapability Kind = "unsupported_capability"
	KindIOFailure             Kind = "io_failure"
	KindCancelled             Kind = "cancelled"
)

// Classifier is implemented by errors that know their own kind.
type Classifier interface {
	ErrorKind() Kind
}

var markers = []struct {
	err  error
	kind Kind
}{
	{ErrCancelled, KindCancelled},
	{ErrCorruptMetadata, KindCorruptMetadata},
	{ErrUnsupportedDevice, KindUnsupportedDevice},
	{ErrCorruptArchive, KindCorruptArchive},
	{ErrNotFound, KindNotFound},
	{ErrAmbiguous, KindAmbiguous},
	{ErrAlreadyInstalled, KindAlreadyInstalled},
	{ErrInsufficientSpace, KindInsufficientSpace},
	{ErrUnsupportedCapability, KindUnsupportedCapability},
	{ErrIOFailure, KindIOFailure},
}

// KindOf returns the taxonomy kind of err. Untagged errors are reported as
// I/O failures since every storypack boundary is a filesystem or archive.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var classifier Classifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	for _, m := range markers {
		if errors.Is(err, m.err) {
			return m.kind
		}
	}
	return KindIOFailure
}

// ExitCode maps an error kind to a process exit status.
func ExitCode(err error) int {
	switch KindOf(err) {
	case KindNone:
		return 0
	case KindNotFound, KindAmbiguous:
		return 2
	case KindAlreadyInstalled:
		return 3
	case KindUnsupportedCapability, KindUnsupportedDevice:
		return 4
	case KindCancelled:
		return 130
	default:
		return 1
	}
}
