package contentindex

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"storypack/internal/logging"
)

// BinaryStore persists identifiers as consecutive 16-byte raw values, visible
// and hidden content in two sibling files.
type BinaryStore struct {
	Visible string
	Hidden  string
	Logger  *slog.Logger
}

// NewBinaryStore returns the store of a Lunii device mounted at root.
func NewBinaryStore(root string, logger *slog.Logger) *BinaryStore {
	return &BinaryStore{
		Visible: filepath.Join(root, ".pi"),
		Hidden:  filepath.Join(root, ".pi.hidden"),
		Logger:  logger,
	}
}

func (s *BinaryStore) Describe() string { return s.Visible }

func (s *BinaryStore) Load() ([]Record, error) {
	visible, err := s.read(s.Visible, false)
	if err != nil {
		return nil, err
	}
	hidden, err := s.read(s.Hidden, true)
	if err != nil {
		return nil, err
	}
	return append(visible, hidden...), nil
}

func (s *BinaryStore) read(path string, hidden bool) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if rest := len(data) % 16; rest != 0 {
		logging.WarnWithContext(s.Logger, "index file has a trailing partial record", "index_partial_record",
			logging.String("path", path),
			logging.Int("trailing_bytes", rest),
			logging.String(logging.FieldImpact, "partial record ignored"),
		)
		data = data[:len(data)-rest]
	}
	records := make([]Record, 0, len(data)/16)
	for off := 0; off < len(data); off += 16 {
		id, err := uuid.FromBytes(data[off : off+16])
		if err != nil {
			return nil, err
		}
		records = append(records, Record{ID: id, Hidden: hidden})
	}
	return records, nil
}

// Save truncates and rewrites both files.
func (s *BinaryStore) Save(records []Record) error {
	var visible, hidden []byte
	for _, rec := range records {
		if rec.Hidden {
			hidden = append(hidden, rec.ID[:]...)
		} else {
			visible = append(visible, rec.ID[:]...)
		}
	}
	if err := os.WriteFile(s.Visible, visible, 0o644); err != nil {
		return err
	}
	return os.WriteFile(s.Hidden, hidden, 0o644)
}
