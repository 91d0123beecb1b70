package device

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"storypack/internal/faults"
	"storypack/internal/logging"
)

// Remove deletes the content matching query after confirm approves it. The
// content directory is deleted before the index is touched, so a failed
// deletion leaves the record in place.
func (b *base) Remove(ctx context.Context, query string, confirm ConfirmFunc) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, faults.Cancelled("remove", "start", err)
	}
	rec, err := b.target.Index.Resolve(query)
	if err != nil {
		return Content{}, err
	}
	content := b.content(rec)
	if confirm != nil {
		ok, err := confirm(content)
		if err != nil {
			return content, err
		}
		if !ok {
			return content, faults.Wrap(faults.ErrCancelled, "remove", "confirm", "removal declined", nil)
		}
	}

	logger := b.logger.With(logging.String(logging.FieldContentID, rec.String()))
	dir := b.target.ContentDir(rec.ID)
	if err := os.RemoveAll(dir); err != nil {
		return content, faults.Wrap(faults.ErrIOFailure, "remove", "delete directory", dir, err)
	}
	if err := b.target.Index.Remove(rec.ID); err != nil {
		logger.Error("content directory deleted but index not updated",
			logging.Error(err),
			logging.String(logging.FieldEventType, "remove_index_failed"),
			logging.String(logging.FieldErrorHint, "run cleanup after fixing the device, then remove again"),
		)
		return content, err
	}
	logger.Info("content removed",
		logging.String(logging.FieldEventType, "remove_complete"),
		logging.String("name", content.Name),
	)
	return content, nil
}

// Cleanup deletes content directories no index record refers to and reports
// what was reclaimed. The index itself is never modified. A directory that
// cannot be deleted is reported in Failed and does not stop the run.
func (b *base) Cleanup(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport
	contentRoot := b.target.ContentRoot()
	entries, err := os.ReadDir(contentRoot)
	if err != nil {
		if isNotExist(err) {
			return report, nil
		}
		return report, faults.Wrap(faults.ErrIOFailure, "cleanup", "list", contentRoot, err)
	}

	known := make(map[string]struct{})
	for _, rec := range b.target.Index.Records(true) {
		known[strings.ToUpper(b.target.DirName(rec.ID))] = struct{}{}
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, faults.Cancelled("cleanup", "scan", err)
		}
		if !entry.IsDir() {
			continue
		}
		if _, ok := known[strings.ToUpper(entry.Name())]; ok {
			continue
		}
		dir := filepath.Join(contentRoot, entry.Name())
		size := treeSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			logging.WarnWithContext(b.logger, "orphan directory not deleted", "cleanup_delete_failed",
				logging.Error(err),
				logging.String("path", dir),
				logging.String(logging.FieldImpact, "space not reclaimed"),
			)
			report.Failed = append(report.Failed, entry.Name())
			continue
		}
		b.logger.Info("orphan directory deleted",
			logging.String(logging.FieldEventType, "cleanup_deleted"),
			logging.String("path", dir),
			logging.Int64("bytes", size),
		)
		report.Removed = append(report.Removed, entry.Name())
		report.Bytes += size
	}
	return report, nil
}

func treeSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
