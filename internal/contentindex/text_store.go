package contentindex

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"storypack/internal/logging"
)

// TextStore persists identifiers as newline-delimited lower-case hyphenated
// strings, visible and hidden content in two sibling files.
type TextStore struct {
	Visible string
	Hidden  string
	Logger  *slog.Logger
}

// NewTextStore returns the store of a Flam device mounted at root.
func NewTextStore(root string, logger *slog.Logger) *TextStore {
	dir := filepath.Join(root, "etc", "library")
	return &TextStore{
		Visible: filepath.Join(dir, "list"),
		Hidden:  filepath.Join(dir, "list.hidden"),
		Logger:  logger,
	}
}

func (s *TextStore) Describe() string { return s.Visible }

func (s *TextStore) Load() ([]Record, error) {
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

func (s *TextStore) read(path string, hidden bool) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := uuid.Parse(line)
		if err != nil {
			logging.WarnWithContext(s.Logger, "index line is not an identifier", "index_bad_line",
				logging.String("path", path),
				logging.String("line", line),
				logging.String(logging.FieldImpact, "line dropped on next rewrite"),
			)
			continue
		}
		records = append(records, Record{ID: id, Hidden: hidden})
	}
	return records, scanner.Err()
}

// Save truncates and rewrites both lists, creating the library directory.
func (s *TextStore) Save(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(s.Visible), 0o755); err != nil {
		return err
	}
	var visible, hidden strings.Builder
	for _, rec := range records {
		target := &visible
		if rec.Hidden {
			target = &hidden
		}
		target.WriteString(rec.ID.String())
		target.WriteByte('\n')
	}
	if err := os.WriteFile(s.Visible, []byte(visible.String()), 0o644); err != nil {
		return err
	}
	return os.WriteFile(s.Hidden, []byte(hidden.String()), 0o644)
}
