package contentindex

import (
	"log/slog"

	"github.com/google/uuid"

	"storypack/internal/faults"
	"storypack/internal/logging"
)

// Store persists index records.
type Store interface {
	Load() ([]Record, error)
	Save(records []Record) error
	Describe() string
}

// Index is the authoritative list of installed content, in append order.
// It is not safe for concurrent use.
type Index struct {
	store   Store
	records []Record
	logger  *slog.Logger
}

// Open loads the index from store. Duplicate identifiers are dropped (first
// occurrence wins) and the store is rewritten once when any were found.
func Open(store Store, logger *slog.Logger) (*Index, error) {
	ix := &Index{store: store, logger: logging.NewComponentLogger(logger, "contentindex")}
	loaded, err := store.Load()
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(loaded))
	for _, rec := range loaded {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		ix.records = append(ix.records, rec)
	}
	if dropped := len(loaded) - len(ix.records); dropped > 0 {
		logging.WarnWithContext(ix.logger, "duplicate content entries removed from index", "index_duplicates",
			logging.Int("duplicates", dropped),
			logging.String("store", store.Describe()),
			logging.String(logging.FieldImpact, "index rewritten without duplicates"),
		)
		if err := ix.Persist(); err != nil {
			return nil, err
		}
	}
	ix.logger.Debug("content index loaded",
		logging.Int("records", len(ix.records)),
		logging.String("store", store.Describe()),
	)
	return ix, nil
}

// Len returns the number of records, hidden ones included.
func (ix *Index) Len() int {
	return len(ix.records)
}

// Records returns a copy of the records in index order. Hidden records are
// only included when includeHidden is set.
func (ix *Index) Records(includeHidden bool) []Record {
	out := make([]Record, 0, len(ix.records))
	for _, rec := range ix.records {
		if rec.Hidden && !includeHidden {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Has reports whether id is installed.
func (ix *Index) Has(id uuid.UUID) bool {
	return ix.position(id) >= 0
}

// Contains reports whether any record matches query.
func (ix *Index) Contains(query string) bool {
	for _, rec := range ix.records {
		if rec.Matches(query) {
			return true
		}
	}
	return false
}

// Find returns every record matching query, in index order.
func (ix *Index) Find(query string) []Record {
	var out []Record
	for _, rec := range ix.records {
		if rec.Matches(query) {
			out = append(out, rec)
		}
	}
	return out
}

// Resolve returns the single record matching query. Zero matches is
// ErrNotFound; several matches is an *faults.AmbiguousError listing them.
func (ix *Index) Resolve(query string) (Record, error) {
	matches := ix.Find(query)
	switch len(matches) {
	case 0:
		return Record{}, faults.Wrap(faults.ErrNotFound, "index", "resolve", "no content matches "+quote(query), nil)
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, len(matches))
		for i, m := range matches {
			candidates[i] = m.String()
		}
		return Record{}, &faults.AmbiguousError{Query: query, Candidates: candidates}
	}
}

// Append adds rec and persists the index. Visible records always precede
// hidden ones, matching the order the stores load them back in. The
// in-memory index is left unchanged when persisting fails.
func (ix *Index) Append(rec Record) error {
	if ix.Has(rec.ID) {
		return faults.Wrap(faults.ErrAlreadyInstalled, "index", "append", rec.String(), nil)
	}
	prev := ix.records
	at := len(prev)
	if !rec.Hidden {
		for i, r := range prev {
			if r.Hidden {
				at = i
				break
			}
		}
	}
	next := make([]Record, 0, len(prev)+1)
	next = append(next, prev[:at]...)
	next = append(next, rec)
	next = append(next, prev[at:]...)
	ix.records = next
	if err := ix.Persist(); err != nil {
		ix.records = prev
		return err
	}
	return nil
}

// Remove deletes the record with id and persists the index. The in-memory
// index is left unchanged when persisting fails.
func (ix *Index) Remove(id uuid.UUID) error {
	pos := ix.position(id)
	if pos < 0 {
		return faults.Wrap(faults.ErrNotFound, "index", "remove", ShortID(id), nil)
	}
	prev := ix.records
	next := make([]Record, 0, len(prev)-1)
	next = append(next, prev[:pos]...)
	next = append(next, prev[pos+1:]...)
	ix.records = next
	if err := ix.Persist(); err != nil {
		ix.records = prev
		return err
	}
	return nil
}

// Persist rewrites the backing store from the in-memory records.
func (ix *Index) Persist() error {
	if err := ix.store.Save(ix.Records(true)); err != nil {
		return faults.Wrap(faults.ErrIOFailure, "index", "persist", ix.store.Describe(), err)
	}
	return nil
}

func (ix *Index) position(id uuid.UUID) int {
	for i, rec := range ix.records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func quote(s string) string {
	return "\"" + s + "\""
}
