package device

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"storypack/internal/catalog"
	"storypack/internal/contentindex"
	"storypack/internal/devicemeta"
	"storypack/internal/faults"
	"storypack/internal/logging"
	"storypack/internal/transfer"
)

const (
	luniiMetadataFile = ".md"
	flamMetadataFile  = ".mdf"
	luniiContentDir   = ".content"
	flamContentDir    = "str"
)

// Content is one installed content with its resolved display name.
type Content struct {
	contentindex.Record
	Name string
}

// ConfirmFunc decides whether a removal may proceed. Returning false aborts
// the removal with faults.ErrCancelled.
type ConfirmFunc func(Content) (bool, error)

// CleanupReport summarizes a Cleanup run.
type CleanupReport struct {
	Removed []string
	Bytes   int64
	Failed  []string
}

// Adapter is the operation surface of one mounted storyteller.
type Adapter interface {
	Root() string
	Identity() *devicemeta.Identity
	Capabilities() Capabilities
	List(includeHidden bool) []Content
	Find(query string) []Content
	Import(ctx context.Context, archivePath string) (uuid.UUID, error)
	ImportDirectory(ctx context.Context, dir string) ([]transfer.Result, error)
	Export(ctx context.Context, query, outDir string) (string, error)
	ExportAll(ctx context.Context, outDir string) ([]string, error)
	Remove(ctx context.Context, query string, confirm ConfirmFunc) (Content, error)
	Cleanup(ctx context.Context) (CleanupReport, error)
	Recover(ctx context.Context, dryRun bool) (RecoverReport, error)
}

// Catalog resolves names and keeps third-party metadata. *catalog.Service
// satisfies it.
type Catalog interface {
	transfer.NameSource
	transfer.MetadataSink
}

// Completer expands a content directory name into a full identifier. A
// Catalog that also implements it is consulted by Recover.
type Completer interface {
	Complete(ctx context.Context, fragment string) (uuid.UUID, bool)
}

var (
	_ Catalog   = (*catalog.Service)(nil)
	_ Completer = (*catalog.Service)(nil)
)

// Options configures Open.
type Options struct {
	// KeysDir holds "<SERIAL>.keys" files for later-layout devices.
	KeysDir string
	// KeyFile overrides the key file lookup.
	KeyFile   string
	Catalog   Catalog
	Margin    int64
	FreeSpace transfer.FreeSpaceFunc
	Logger    *slog.Logger
}

// Open detects the family of the storyteller mounted at root, parses its
// metadata and loads its content index.
func Open(root string, opts Options) (Adapter, error) {
	family, ok := Detect(root)
	if !ok {
		return nil, faults.Wrap(faults.ErrUnsupportedDevice, "device", "open",
			root+" holds neither "+luniiMetadataFile+" nor "+flamMetadataFile, nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	switch family {
	case devicemeta.FamilyFlam:
		return openFlam(root, opts, logger)
	default:
		return openLunii(root, opts, logger)
	}
}

// Detect reports the family of the storyteller mounted at root.
func Detect(root string) (devicemeta.Family, bool) {
	if isFile(filepath.Join(root, luniiMetadataFile)) && isDir(filepath.Join(root, luniiContentDir)) {
		return devicemeta.FamilyLunii, true
	}
	if isFile(filepath.Join(root, flamMetadataFile)) && isDir(filepath.Join(root, flamContentDir)) {
		return devicemeta.FamilyFlam, true
	}
	return 0, false
}

func openLunii(root string, opts Options, logger *slog.Logger) (*Lunii, error) {
	md, err := readMetadata(filepath.Join(root, luniiMetadataFile))
	if err != nil {
		return nil, err
	}
	identity, err := devicemeta.Identify(md)
	if err != nil {
		return nil, err
	}
	logger = logger.With(logging.String(logging.FieldDevice, identity.SerialString()))

	loaded, err := identity.LoadKeys(opts.KeysDir, opts.KeyFile)
	if err != nil {
		return nil, err
	}
	if loaded {
		logger.Debug("device keys loaded", logging.String("key_file", identity.KeyFile))
	} else if identity.Layout == devicemeta.LayoutLater {
		logging.WarnWithContext(logger, "no key file for this device", "device_keys_missing",
			logging.String(logging.FieldErrorHint, "place "+devicemeta.KeyFileName(identity.SerialString())+" in the keys directory or pass --key"),
			logging.String(logging.FieldImpact, "content installed by other tools may not be exportable"),
		)
	}

	store := contentindex.NewBinaryStore(root, logger)
	b, err := newBase(root, identity, store, opts, logger)
	if err != nil {
		return nil, err
	}
	return &Lunii{base: b}, nil
}

func openFlam(root string, opts Options, logger *slog.Logger) (*Flam, error) {
	mdf, err := readMetadata(filepath.Join(root, flamMetadataFile))
	if err != nil {
		return nil, err
	}
	identity, err := devicemeta.IdentifyFlam(mdf)
	if err != nil {
		return nil, err
	}
	logger = logger.With(logging.String(logging.FieldDevice, identity.SerialString()))
	store := contentindex.NewTextStore(root, logger)
	b, err := newBase(root, identity, store, opts, logger)
	if err != nil {
		return nil, err
	}
	return &Flam{base: b}, nil
}

func readMetadata(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIOFailure, "device", "read metadata", path, err)
	}
	return data, nil
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
