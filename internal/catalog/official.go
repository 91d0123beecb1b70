package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"storypack/internal/logging"
)

const (
	defaultDownloadTimeout = 30 * time.Second
	lockRetryDelay         = 200 * time.Millisecond
)

// Entry describes one catalog content.
type Entry struct {
	ID          uuid.UUID
	Title       string
	Description string
	ImageURL    string
	Official    bool
}

// Official is the local mirror of the vendor catalog.
type Official struct {
	path      string
	url       string
	imageBase string
	maxAge    time.Duration
	offline   bool
	client    *http.Client
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
	modTime time.Time
}

// OfficialOptions configures NewOfficial.
type OfficialOptions struct {
	Path         string
	URL          string
	ImageBaseURL string
	MaxAge       time.Duration
	Timeout      time.Duration
	Offline      bool
	Logger       *slog.Logger
}

// NewOfficial returns a catalog mirror stored at opts.Path.
func NewOfficial(opts OfficialOptions) *Official {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return &Official{
		path:      opts.Path,
		url:       strings.TrimSpace(opts.URL),
		imageBase: strings.TrimRight(strings.TrimSpace(opts.ImageBaseURL), "/"),
		maxAge:    opts.MaxAge,
		offline:   opts.Offline,
		client:    &http.Client{Timeout: timeout},
		logger:    logging.NewComponentLogger(opts.Logger, "catalog"),
	}
}

// Load reads the mirror, downloading it first when it is missing or older
// than the configured maximum age. A failed download is logged and the stale
// mirror, if any, stays in use.
func (o *Official) Load(ctx context.Context) error {
	stale, err := o.needsRefresh()
	if err != nil {
		return err
	}
	if stale && !o.offline && o.url != "" {
		if err := o.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("catalog refresh failed; display names may be stale",
				logging.String("path", o.path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "catalog_refresh_failed"),
				logging.String(logging.FieldErrorHint, "check network access or set catalog.url"),
				logging.String(logging.FieldImpact, "content shown as unknown"),
			)
		}
	}
	return o.loadFromDisk()
}

// Refresh downloads the catalog and replaces the mirror. Concurrent
// processes serialize on a lock file next to the mirror.
func (o *Official) Refresh(ctx context.Context) error {
	if o.url == "" {
		return errors.New("catalog url is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}
	lock := flock.New(o.path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire catalog lock: %w", err)
	}
	if !locked {
		return errors.New("catalog lock is held by another process")
	}
	defer func() { _ = lock.Unlock() }()

	o.logger.Debug("downloading catalog", logging.String("url", o.url))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("download catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download catalog: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("download catalog: %w", err)
	}

	var envelope struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}
	if len(bytes.TrimSpace(envelope.Response)) == 0 {
		return errors.New("catalog response is empty")
	}
	if _, err := parseOfficial(envelope.Response, o.imageBase); err != nil {
		return err
	}

	tempPath := o.path + ".tmp"
	if err := os.WriteFile(tempPath, envelope.Response, 0o644); err != nil {
		return fmt.Errorf("write catalog temp file: %w", err)
	}
	if err := os.Rename(tempPath, o.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replace catalog file: %w", err)
	}
	o.logger.Info("catalog refreshed",
		logging.String("path", o.path),
		logging.Int("bytes", len(envelope.Response)),
	)
	o.mu.Lock()
	o.entries = nil
	o.mu.Unlock()
	return o.loadFromDisk()
}

// Lookup returns the catalog entry for id.
func (o *Official) Lookup(id uuid.UUID) (Entry, bool) {
	if o == nil {
		return Entry{}, false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[id]
	return e, ok
}

// Match returns the identifiers whose upper-case form contains fragment,
// in lexical order.
func (o *Official) Match(fragment string) []uuid.UUID {
	if o == nil || fragment == "" {
		return nil
	}
	fragment = strings.ToUpper(fragment)
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []uuid.UUID
	for id := range o.entries {
		if strings.Contains(key(id), fragment) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}

// Len returns the number of loaded entries.
func (o *Official) Len() int {
	if o == nil {
		return 0
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}

func (o *Official) needsRefresh() (bool, error) {
	info, err := os.Stat(o.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	if o.maxAge <= 0 {
		return false, nil
	}
	return time.Since(info.ModTime()) > o.maxAge, nil
}

func (o *Official) loadFromDisk() error {
	info, err := os.Stat(o.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			o.mu.Lock()
			o.entries = map[uuid.UUID]Entry{}
			o.modTime = time.Time{}
			o.mu.Unlock()
			return nil
		}
		return err
	}
	o.mu.RLock()
	loaded := o.entries != nil && o.modTime.Equal(info.ModTime())
	o.mu.RUnlock()
	if loaded {
		return nil
	}

	data, err := os.ReadFile(o.path)
	if err != nil {
		return err
	}
	entries, err := parseOfficial(data, o.imageBase)
	if err != nil {
		o.logger.Warn("catalog mirror unreadable; removing it",
			logging.String("path", o.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "catalog_corrupt"),
			logging.String(logging.FieldImpact, "mirror downloaded again on next refresh"),
		)
		_ = os.Remove(o.path)
		entries = map[uuid.UUID]Entry{}
	}
	o.mu.Lock()
	o.entries = entries
	o.modTime = info.ModTime()
	o.mu.Unlock()
	o.logger.Debug("catalog loaded", logging.Int("entries", len(entries)))
	return nil
}

type officialPack struct {
	UUID             string                   `json:"uuid"`
	Title            string                   `json:"title"`
	LocalesAvailable json.RawMessage          `json:"locales_available"`
	LocalizedInfos   map[string]localizedInfo `json:"localized_infos"`
}

type localizedInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       *struct {
		ImageURL string `json:"image_url"`
	} `json:"image"`
}

// parseOfficial decodes the catalog object keyed by pack reference.
func parseOfficial(data []byte, imageBase string) (map[uuid.UUID]Entry, error) {
	var packs map[string]officialPack
	if err := json.Unmarshal(data, &packs); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	entries := make(map[uuid.UUID]Entry, len(packs))
	for _, pack := range packs {
		id, err := uuid.Parse(strings.TrimSpace(pack.UUID))
		if err != nil {
			continue
		}
		entry := Entry{ID: id, Title: pack.Title, Official: true}
		if info, ok := pack.LocalizedInfos[pack.firstLocale()]; ok {
			if entry.Title == "" {
				entry.Title = info.Title
			}
			entry.Description = stripLinkPrefix(info.Description)
			if info.Image != nil && info.Image.ImageURL != "" {
				entry.ImageURL = imageBase + info.Image.ImageURL
			}
		}
		entries[id] = entry
	}
	return entries, nil
}

// firstLocale returns the first key of locales_available in document order,
// falling back to the smallest localized_infos key.
func (p officialPack) firstLocale() string {
	if len(p.LocalesAvailable) > 0 {
		dec := json.NewDecoder(bytes.NewReader(p.LocalesAvailable))
		if tok, err := dec.Token(); err == nil && tok == json.Delim('{') {
			if key, err := dec.Token(); err == nil {
				if s, ok := key.(string); ok {
					return s
				}
			}
		}
	}
	keys := make([]string, 0, len(p.LocalizedInfos))
	for k := range p.LocalizedInfos {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return keys[0]
}

func stripLinkPrefix(desc string) string {
	if strings.HasPrefix(desc, "<link href") {
		if pos := strings.Index(desc, ">"); pos >= 0 {
			return desc[pos+1:]
		}
	}
	return desc
}
