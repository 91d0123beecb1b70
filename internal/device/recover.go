package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"storypack/internal/contentindex"
	"storypack/internal/devicemeta"
	"storypack/internal/faults"
	"storypack/internal/logging"
)

// shortIDPad completes an 8 digit Lunii directory name into an identifier
// when no catalog knows it.
const shortIDPad = "000000000000000000000000"

// RecoverReport summarizes a Recover run.
type RecoverReport struct {
	// Recovered lists the content appended to the index, or that would be
	// appended on a dry run.
	Recovered []Content
	// Skipped lists directories that are not complete content.
	Skipped []string
	// Repaired lists directories whose authorization file was rewritten.
	Repaired []string
}

// Recover appends to the index every content directory the index lost track
// of, provided the directory holds complete content. Directories are visited
// in lexical order. With dryRun set nothing on the device is modified.
func (b *base) Recover(ctx context.Context, dryRun bool) (RecoverReport, error) {
	var report RecoverReport
	contentRoot := b.target.ContentRoot()
	entries, err := os.ReadDir(contentRoot)
	if err != nil {
		if isNotExist(err) {
			return report, nil
		}
		return report, faults.Wrap(faults.ErrIOFailure, "recover", "list", contentRoot, err)
	}

	known := make(map[string]struct{})
	for _, rec := range b.target.Index.Records(true) {
		known[strings.ToUpper(b.target.DirName(rec.ID))] = struct{}{}
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, faults.Cancelled("recover", "scan", err)
		}
		name := entry.Name()
		if !entry.IsDir() {
			continue
		}
		if _, ok := known[strings.ToUpper(name)]; ok {
			continue
		}
		logger := b.logger.With(logging.String("path", name))

		id, ok := b.completeDirName(ctx, name)
		if !ok || b.target.Index.Has(id) {
			logger.Debug("directory does not name content", logging.String(logging.FieldEventType, "recover_skipped"))
			report.Skipped = append(report.Skipped, name)
			continue
		}
		logger = logger.With(logging.String(logging.FieldContentID, strings.ToUpper(id.String())))

		dir := filepath.Join(contentRoot, name)
		badAuth, err := b.target.Check(dir, !dryRun)
		if err != nil {
			if !errors.Is(err, faults.ErrCorruptArchive) {
				return report, err
			}
			logging.WarnWithContext(logger, "lost content is incomplete", "recover_incomplete",
				logging.Error(err),
				logging.String(logging.FieldImpact, "content left out of the index"),
				logging.String(logging.FieldErrorHint, "reinstall the content or run cleanup"),
			)
			report.Skipped = append(report.Skipped, name)
			continue
		}
		if badAuth {
			logging.WarnWithContext(logger, "bad authorization file", "recover_bad_authorization",
				logging.Bool("rewritten", !dryRun),
			)
			report.Repaired = append(report.Repaired, name)
		}

		rec := contentindex.Record{ID: id}
		if !dryRun {
			if err := b.target.Index.Append(rec); err != nil {
				return report, err
			}
		}
		content := b.content(rec)
		logger.Info("lost content recovered",
			logging.String(logging.FieldEventType, "recover_found"),
			logging.String("name", content.Name),
			logging.Bool("dry_run", dryRun),
		)
		report.Recovered = append(report.Recovered, content)
	}
	return report, nil
}

// completeDirName resolves the identifier stored under the content
// directory name. Catalog matches must map back onto the same directory.
func (b *base) completeDirName(ctx context.Context, name string) (uuid.UUID, bool) {
	if completer, ok := b.catalog.(Completer); ok {
		if id, ok := completer.Complete(ctx, name); ok && strings.EqualFold(b.target.DirName(id), name) {
			return id, true
		}
	}
	if b.target.Identity.Family == devicemeta.FamilyFlam {
		id, err := uuid.Parse(name)
		return id, err == nil && strings.EqualFold(b.target.DirName(id), name)
	}
	if len(name) != 8 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(shortIDPad + name)
	return id, err == nil
}
