package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"storypack/internal/catalog"
	"storypack/internal/cipher"
	"storypack/internal/contentindex"
	"storypack/internal/devicemeta"
	"storypack/internal/faults"
	"storypack/internal/logging"
	"storypack/internal/packfmt"
)

// MetadataSink records third-party metadata found in imported archives.
type MetadataSink interface {
	Remember(ctx context.Context, id uuid.UUID, meta *catalog.Metadata, thumbnail []byte) error
}

// ImporterOptions configures an Importer.
type ImporterOptions struct {
	Metadata  MetadataSink
	Margin    int64
	FreeSpace FreeSpaceFunc
	Logger    *slog.Logger
}

// Importer installs archives on one device.
type Importer struct {
	target    Target
	metadata  MetadataSink
	margin    int64
	freeSpace FreeSpaceFunc
	logger    *slog.Logger
}

// NewImporter returns an importer for target.
func NewImporter(target Target, opts ImporterOptions) *Importer {
	freeSpace := opts.FreeSpace
	if freeSpace == nil {
		freeSpace = StatfsFreeSpace
	}
	return &Importer{
		target:    target,
		metadata:  opts.Metadata,
		margin:    opts.Margin,
		freeSpace: freeSpace,
		logger:    logging.NewComponentLogger(opts.Logger, "import"),
	}
}

// Result is the outcome of one archive of a batch.
type Result struct {
	Path string
	ID   uuid.UUID
	Err  error
}

// file is one content file in its on-device form.
type file struct {
	name string
	data []byte
}

// plan is a validated archive ready to be written.
type plan struct {
	id        uuid.UUID
	entries   []packfmt.Entry
	rename    func(entry string) (string, bool)
	convert   func(name string, data []byte) ([]byte, error)
	meta      *catalog.Metadata
	thumbnail []byte
}

// Import installs the archive at archivePath and returns its identifier.
func (im *Importer) Import(ctx context.Context, archivePath string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, faults.Cancelled("import", "start", err)
	}
	start := time.Now()
	logger := logging.WithContext(ctx, im.logger).With(logging.String(logging.FieldArchive, archivePath))

	a, err := packfmt.Open(archivePath)
	if err != nil {
		return uuid.Nil, err
	}
	defer a.Close()

	var p *plan
	if im.target.Identity.Family == devicemeta.FamilyFlam {
		p, err = im.planFlam(a)
	} else {
		p, err = im.planLunii(a, logger)
	}
	if err != nil {
		return uuid.Nil, err
	}
	logger = logger.With(logging.String(logging.FieldContentID, strings.ToUpper(p.id.String())))

	if im.target.Index.Has(p.id) {
		return p.id, faults.Wrap(faults.ErrAlreadyInstalled, "import", "check", strings.ToUpper(p.id.String())+" is already on the device", nil)
	}

	for _, rec := range im.target.Index.Records(true) {
		if im.target.DirName(rec.ID) == im.target.DirName(p.id) {
			return p.id, faults.Wrap(faults.ErrAlreadyInstalled, "import", "check",
				"content directory "+im.target.DirName(p.id)+" belongs to "+rec.String(), nil)
		}
	}

	if err := im.checkSpace(a); err != nil {
		return p.id, err
	}

	if err := im.write(ctx, p, logger); err != nil {
		return p.id, err
	}

	if p.meta != nil || len(p.thumbnail) > 0 {
		if im.metadata != nil {
			if err := im.metadata.Remember(ctx, p.id, p.meta, p.thumbnail); err != nil {
				logging.WarnWithContext(logger, "third-party metadata not stored", "metadata_store_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "content listed under an unknown name"),
				)
			}
		}
	}
	logger.Info("content imported",
		logging.String(logging.FieldEventType, "import_complete"),
		logging.Int("files", len(p.entries)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return p.id, nil
}

// ImportDirectory imports every archive found below dir, sorted by path. A
// failing archive is reported in its Result and does not stop the batch;
// cancellation does.
func (im *Importer) ImportDirectory(ctx context.Context, dir string) ([]Result, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && packfmt.HasArchiveSuffix(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, faults.Wrap(faults.ErrIOFailure, "import", "scan", dir, err)
	}
	sort.Strings(paths)
	im.logger.Info("importing archives", logging.Int("archives", len(paths)), logging.String("dir", dir))

	results := make([]Result, 0, len(paths))
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return results, faults.Cancelled("import", "batch", err)
		}
		im.logger.Info("importing archive",
			logging.String(logging.FieldArchive, p),
			logging.Int("position", i+1),
			logging.Int("total", len(paths)),
		)
		id, err := im.Import(ctx, p)
		results = append(results, Result{Path: p, ID: id, Err: err})
		if err != nil {
			if errors.Is(err, faults.ErrCancelled) {
				return results, err
			}
			logging.WarnWithContext(im.logger, "archive import failed", "import_failed",
				logging.String(logging.FieldArchive, p),
				logging.Error(err),
				logging.ErrorKind(err),
				logging.String(logging.FieldImpact, "archive skipped, batch continues"),
			)
		}
	}
	return results, nil
}

func (im *Importer) checkSpace(a *packfmt.Archive) error {
	free, err := im.freeSpace(im.target.Root)
	if err != nil {
		return faults.Wrap(faults.ErrIOFailure, "import", "free space", im.target.Root, err)
	}
	need := a.Size + im.margin
	if need < 0 || uint64(need) >= free {
		return faults.Wrap(faults.ErrInsufficientSpace, "import", "free space",
			fmt.Sprintf("archive needs %s, device has %s left", humanize.IBytes(uint64(a.Size)), humanize.IBytes(free)), nil)
	}
	return nil
}

func (im *Importer) planLunii(a *packfmt.Archive, logger *slog.Logger) (*plan, error) {
	class, err := packfmt.ClassifyArchive(a)
	if err != nil {
		return nil, err
	}
	logger.Debug("archive classified",
		logging.String("kind", class.Kind.String()),
		logging.String("generation", class.Generation.String()),
		logging.String("origin", class.Origin.String()),
	)
	// Content is ciphered with the key forged from the metadata, which the
	// device recovers from the AuthBlob written as bt.
	identity := im.target.Identity
	keys, err := identity.KeySet(nil)
	if err != nil {
		return nil, err
	}
	encipher := func(name string, plain []byte) ([]byte, error) {
		return keys.Encipher(name, plain)
	}
	generic := cipher.GenericKey()

	switch class.Kind {
	case packfmt.KindThirdPartyIncompatible:
		return nil, faults.Wrap(faults.ErrUnsupportedCapability, "import", "classify", "STUdio archives cannot be installed", nil)

	case packfmt.KindPortablePlain:
		id, err := a.Marker()
		if err != nil {
			return nil, err
		}
		p := &plan{id: id, entries: a.Entries(), convert: encipher}
		p.rename = func(entry string) (string, bool) {
			switch entry {
			case packfmt.MarkerEntry, packfmt.MetadataEntry, packfmt.ThumbnailEntry:
				return "", false
			}
			return packfmt.DeviceName(entry), true
		}
		if err := readThirdParty(a, p); err != nil {
			return nil, err
		}
		return p, nil

	case packfmt.KindGenericZip:
		id, err := a.Marker()
		if err != nil {
			return nil, err
		}
		p := &plan{id: id, entries: a.Entries()}
		p.rename = func(entry string) (string, bool) {
			if entry == packfmt.MarkerEntry || cipher.RoleOf(entry) == cipher.RoleAuthorization {
				return "", false
			}
			return packfmt.DeviceName(entry), true
		}
		p.convert = func(name string, data []byte) ([]byte, error) {
			plain, err := decipherLegacy(name, data, generic)
			if err != nil {
				return nil, err
			}
			return encipher(name, plain)
		}
		return p, nil

	case packfmt.KindLegacyPartial:
		if class.Origin != packfmt.OriginLunii {
			return nil, faults.Wrap(faults.ErrUnsupportedCapability, "import", "classify", "archive was made for another storyteller", nil)
		}
		if class.Generation == packfmt.GenerationLater {
			return nil, faults.Wrap(faults.ErrUnsupportedCapability, "import", "classify", "archives ciphered for v3 devices cannot be installed", nil)
		}
		id, prefix, err := a.DirIdentifier()
		if err != nil {
			return nil, err
		}
		p := &plan{id: id, entries: a.Entries()}
		p.rename = func(entry string) (string, bool) {
			rel, ok := strings.CutPrefix(strings.ReplaceAll(entry, "\\", "/"), prefix+"/")
			if !ok || cipher.RoleOf(rel) == cipher.RoleAuthorization {
				return "", false
			}
			return packfmt.DeviceName(rel), true
		}
		if identity.Layout == devicemeta.LayoutLegacy {
			p.convert = func(_ string, data []byte) ([]byte, error) { return data, nil }
		} else {
			p.convert = func(name string, data []byte) ([]byte, error) {
				plain, err := decipherLegacy(name, data, generic)
				if err != nil {
					return nil, err
				}
				return encipher(name, plain)
			}
		}
		return p, nil
	}
	return nil, faults.Wrap(faults.ErrCorruptArchive, "import", "classify", "unrecognized archive layout", nil)
}

func (im *Importer) planFlam(a *packfmt.Archive) (*plan, error) {
	if !strings.HasSuffix(strings.ToLower(a.Path), ".zip") {
		return nil, faults.Wrap(faults.ErrUnsupportedCapability, "import", "classify", "Flam devices only accept .zip archives", nil)
	}
	names := a.Names()
	if packfmt.IsLunii(names) || packfmt.IsStudio(names) {
		return nil, faults.Wrap(faults.ErrUnsupportedCapability, "import", "classify", "archive was made for another storyteller", nil)
	}
	id, prefix, err := a.DirIdentifier()
	if err != nil {
		return nil, err
	}
	for _, e := range a.Entries() {
		rel, err := packfmt.SafeRelative(e.Name)
		if err != nil {
			return nil, err
		}
		if _, ok := strings.CutPrefix(rel, prefix+"/"); !ok {
			return nil, faults.Wrap(faults.ErrCorruptArchive, "import", "layout", "entry outside the content directory: "+e.Name, nil)
		}
	}
	p := &plan{id: id, entries: a.Entries()}
	p.rename = func(entry string) (string, bool) {
		rel, _ := packfmt.SafeRelative(entry)
		rest, _ := strings.CutPrefix(rel, prefix+"/")
		return rest, true
	}
	p.convert = func(_ string, data []byte) ([]byte, error) { return data, nil }
	return p, nil
}

// write creates the content directory, fills it and commits the index. Any
// failure removes the directory.
func (im *Importer) write(ctx context.Context, p *plan, logger *slog.Logger) (err error) {
	dir := im.target.ContentDir(p.id)
	if _, statErr := os.Stat(dir); statErr == nil {
		logging.WarnWithContext(logger, "removing leftover content directory", "import_orphan_dir",
			logging.String("dir", dir),
			logging.String(logging.FieldImpact, "unindexed files replaced by the imported content"),
		)
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return faults.Wrap(faults.ErrIOFailure, "import", "prepare", dir, rmErr)
		}
	}
	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return faults.Wrap(faults.ErrIOFailure, "import", "prepare", dir, mkErr)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				logging.WarnWithContext(logger, "partial content directory not removed", "import_cleanup_failed",
					logging.String("dir", dir),
					logging.Error(rmErr),
					logging.String(logging.FieldErrorHint, "run storypack cleanup"),
				)
			} else {
				logger.Debug("partial content directory removed", logging.String("dir", dir))
			}
		}
	}()

	var cipheredRI []byte
	for _, e := range p.entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("import aborted, cleaning up", logging.String(logging.FieldEventType, "import_cancelled"))
			return faults.Cancelled("import", "write", ctxErr)
		}
		name, keep := p.rename(e.Name)
		if !keep {
			continue
		}
		rel, relErr := packfmt.SafeRelative(name)
		if relErr != nil {
			return relErr
		}
		data, readErr := e.Read()
		if readErr != nil {
			return readErr
		}
		out, convErr := p.convert(rel, data)
		if convErr != nil {
			return convErr
		}
		if writeErr := writeFile(filepath.Join(dir, filepath.FromSlash(rel)), out); writeErr != nil {
			return faults.Wrap(faults.ErrIOFailure, "import", "write", rel, writeErr)
		}
		if path.Base(rel) == "ri" {
			cipheredRI = out
		}
		logger.Debug("file written", logging.String(logging.FieldEntry, rel), logging.Int("bytes", len(out)))
	}

	if im.target.Identity.Family == devicemeta.FamilyLunii {
		bt, btErr := im.target.Identity.Authorization(cipheredRI)
		if btErr != nil {
			return btErr
		}
		if writeErr := writeFile(filepath.Join(dir, "bt"), bt); writeErr != nil {
			return faults.Wrap(faults.ErrIOFailure, "import", "authorization", "bt", writeErr)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return faults.Cancelled("import", "commit", ctxErr)
	}
	return im.target.Index.Append(contentindex.Record{ID: p.id})
}

func readThirdParty(a *packfmt.Archive, p *plan) error {
	if a.Has(packfmt.MetadataEntry) {
		data, err := a.Read(packfmt.MetadataEntry)
		if err != nil {
			return err
		}
		meta, err := catalog.ParseMetadata(data)
		if err != nil {
			return faults.Wrap(faults.ErrCorruptArchive, "import", "metadata", packfmt.MetadataEntry, err)
		}
		metaID, err := uuid.Parse(strings.TrimSpace(meta.UUID))
		if err != nil || metaID != p.id {
			return faults.Wrap(faults.ErrCorruptArchive, "import", "metadata",
				fmt.Sprintf("%s names %q, archive holds %s", packfmt.MetadataEntry, meta.UUID, strings.ToUpper(p.id.String())), nil)
		}
		p.meta = &meta
	}
	if a.Has(packfmt.ThumbnailEntry) {
		data, err := a.Read(packfmt.ThumbnailEntry)
		if err != nil {
			return err
		}
		p.thumbnail = data
	}
	return nil
}

// decipherLegacy recovers plain bytes from a legacy ciphered archive entry.
func decipherLegacy(name string, data []byte, generic cipher.Key) ([]byte, error) {
	if cipher.RoleOf(name) == cipher.RoleExempt {
		return data, nil
	}
	return cipher.DecipherHeader(data, generic)
}

func writeFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
