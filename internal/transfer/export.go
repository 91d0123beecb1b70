package transfer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"storypack/internal/cipher"
	"storypack/internal/contentindex"
	"storypack/internal/devicemeta"
	"storypack/internal/faults"
	"storypack/internal/logging"
	"storypack/internal/packfmt"
)

// NameSource supplies display names and third-party files for exports.
type NameSource interface {
	DisplayName(id uuid.UUID) string
	ThirdPartyFiles(ctx context.Context, id uuid.UUID) (meta, thumbnail []byte, err error)
}

// Exporter writes installed content to portable archives.
type Exporter struct {
	target Target
	names  NameSource
	logger *slog.Logger
}

// NewExporter returns an exporter for target. names may be nil.
func NewExporter(target Target, names NameSource, logger *slog.Logger) *Exporter {
	return &Exporter{
		target: target,
		names:  names,
		logger: logging.NewComponentLogger(logger, "export"),
	}
}

// Export writes the content matching query to a new archive in outDir and
// returns its path.
func (ex *Exporter) Export(ctx context.Context, query, outDir string) (string, error) {
	rec, err := ex.target.Index.Resolve(query)
	if err != nil {
		return "", err
	}
	return ex.exportRecord(ctx, rec, outDir)
}

// ExportAll exports every installed content in index order. Failures are
// logged and skipped; only cancellation stops the run. The paths of the
// archives written are returned in both cases.
func (ex *Exporter) ExportAll(ctx context.Context, outDir string) ([]string, error) {
	records := ex.target.Index.Records(true)
	var paths []string
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return paths, faults.Cancelled("export", "batch", err)
		}
		ex.logger.Info("exporting content",
			logging.String(logging.FieldContentID, rec.String()),
			logging.Int("position", i+1),
			logging.Int("total", len(records)),
		)
		p, err := ex.exportRecord(ctx, rec, outDir)
		if err != nil {
			if errors.Is(err, faults.ErrCancelled) {
				return paths, err
			}
			logging.WarnWithContext(ex.logger, "content export failed", "export_failed",
				logging.String(logging.FieldContentID, rec.String()),
				logging.Error(err),
				logging.ErrorKind(err),
				logging.String(logging.FieldImpact, "content skipped, batch continues"),
			)
			continue
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (ex *Exporter) exportRecord(ctx context.Context, rec contentindex.Record, outDir string) (string, error) {
	start := time.Now()
	logger := logging.WithContext(ctx, ex.logger).With(logging.String(logging.FieldContentID, rec.String()))

	dir := ex.target.ContentDir(rec.ID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", faults.Wrap(faults.ErrNotFound, "export", "locate", "content directory missing for "+rec.String(), err)
	}

	flam := ex.target.Identity.Family == devicemeta.FamilyFlam
	var keys cipher.KeySet
	if !flam {
		keys, err = ex.target.contentKeys(dir)
		if err != nil {
			return "", err
		}
	}

	files, err := listFiles(dir)
	if err != nil {
		return "", faults.Wrap(faults.ErrIOFailure, "export", "list", dir, err)
	}

	displayName := "story"
	if ex.names != nil {
		displayName = ex.names.DisplayName(rec.ID)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", faults.Wrap(faults.ErrIOFailure, "export", "prepare", outDir, err)
	}
	finalPath := filepath.Join(outDir, packfmt.ArchiveName(displayName, rec.Short(), flam))

	tmp, err := os.CreateTemp(outDir, ".storypack-*.tmp")
	if err != nil {
		return "", faults.Wrap(faults.ErrIOFailure, "export", "create", outDir, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			logger.Warn("export aborted", logging.String(logging.FieldEventType, "export_cancelled"))
			return "", faults.Cancelled("export", "write", err)
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", faults.Wrap(faults.ErrIOFailure, "export", "read", rel, err)
		}
		var name string
		if flam {
			name = ex.target.DirName(rec.ID) + "/" + rel
		} else {
			if !packfmt.Exported(rel) {
				continue
			}
			data, err = keys.Decipher(rel, data)
			if err != nil {
				return "", err
			}
			name = packfmt.PortableName(rel)
		}
		if err := addEntry(zw, name, data); err != nil {
			return "", faults.Wrap(faults.ErrIOFailure, "export", "write", name, err)
		}
		logger.Debug("file exported", logging.String(logging.FieldEntry, name), logging.Int("bytes", len(data)))
	}

	if !flam {
		if err := addEntry(zw, packfmt.MarkerEntry, rec.ID[:]); err != nil {
			return "", faults.Wrap(faults.ErrIOFailure, "export", "write", packfmt.MarkerEntry, err)
		}
		if ex.names != nil {
			meta, thumb, err := ex.names.ThirdPartyFiles(ctx, rec.ID)
			if err != nil {
				logging.WarnWithContext(logger, "third-party metadata unavailable", "export_metadata_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "archive exported without title and thumbnail"),
				)
			}
			if len(thumb) > 0 {
				if err := addEntry(zw, packfmt.ThumbnailEntry, thumb); err != nil {
					return "", faults.Wrap(faults.ErrIOFailure, "export", "write", packfmt.ThumbnailEntry, err)
				}
			}
			if len(meta) > 0 {
				if err := addEntry(zw, packfmt.MetadataEntry, meta); err != nil {
					return "", faults.Wrap(faults.ErrIOFailure, "export", "write", packfmt.MetadataEntry, err)
				}
			}
		}
	}

	if err := zw.Close(); err != nil {
		return "", faults.Wrap(faults.ErrIOFailure, "export", "finish", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", faults.Wrap(faults.ErrIOFailure, "export", "finish", tmpPath, err)
	}
	if err := ctx.Err(); err != nil {
		return "", faults.Cancelled("export", "commit", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", faults.Wrap(faults.ErrIOFailure, "export", "commit", finalPath, err)
	}
	committed = true

	logger.Info("content exported",
		logging.String(logging.FieldEventType, "export_complete"),
		logging.String(logging.FieldArchive, finalPath),
		logging.Duration("elapsed", time.Since(start)),
	)
	return finalPath, nil
}

// listFiles returns the slash separated paths of every regular file below
// dir in lexical order.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

func addEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(strings.TrimLeft(name, "/"))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
