package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"storypack/internal/config"
	"storypack/internal/logging"
)

// UnknownName is shown for content no catalog knows.
const UnknownName = "Unknown story"

// Names is the lookup consumed by the transfer pipelines.
type Names interface {
	NameFor(id uuid.UUID) (string, bool)
}

// Metadata is the "_metadata.json" document carried by portable archives of
// third-party content.
type Metadata struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ParseMetadata decodes a "_metadata.json" document.
func ParseMetadata(data []byte) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// Service combines the official mirror and the third-party store. Either may
// be nil; a nil Service knows nothing.
type Service struct {
	official   *Official
	thirdParty *ThirdParty
	logger     *slog.Logger
}

// New wires a service from its parts.
func New(official *Official, thirdParty *ThirdParty, logger *slog.Logger) *Service {
	return &Service{
		official:   official,
		thirdParty: thirdParty,
		logger:     logging.NewComponentLogger(logger, "catalog"),
	}
}

// Open builds the service described by cfg and loads the official mirror.
// A missing or unreachable catalog is not an error.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	official := NewOfficial(OfficialOptions{
		Path:         cfg.OfficialCatalogPath(),
		URL:          cfg.Catalog.URL,
		ImageBaseURL: cfg.Catalog.ImageBaseURL,
		MaxAge:       cfg.CatalogMaxAge(),
		Timeout:      cfg.CatalogTimeout(),
		Offline:      cfg.Catalog.Offline,
		Logger:       logger,
	})
	if err := official.Load(ctx); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	thirdParty, err := OpenThirdParty(ctx, cfg.ThirdPartyStorePath())
	if err != nil {
		return nil, fmt.Errorf("open third-party store: %w", err)
	}
	return New(official, thirdParty, logger), nil
}

// Close releases the third-party store.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	return s.thirdParty.Close()
}

// Official returns the official mirror.
func (s *Service) Official() *Official {
	if s == nil {
		return nil
	}
	return s.official
}

// NameFor returns the display name of id.
func (s *Service) NameFor(id uuid.UUID) (string, bool) {
	e, ok := s.Lookup(context.Background(), id)
	if !ok || strings.TrimSpace(e.Title) == "" {
		return "", false
	}
	return e.Title, true
}

// DisplayName returns the name of id or UnknownName.
func (s *Service) DisplayName(id uuid.UUID) string {
	if name, ok := s.NameFor(id); ok {
		return name
	}
	return UnknownName
}

// IsOfficial reports whether id is listed in the official catalog.
func (s *Service) IsOfficial(id uuid.UUID) bool {
	if s == nil {
		return false
	}
	_, ok := s.official.Lookup(id)
	return ok
}

// Lookup returns everything known about id, official entries first.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	if e, ok := s.official.Lookup(id); ok {
		return e, true
	}
	if s.thirdParty == nil {
		return Entry{}, false
	}
	rec, ok, err := s.thirdParty.Get(ctx, id)
	if err != nil {
		s.logger.Debug("third-party lookup failed", logging.String(logging.FieldContentID, id.String()), logging.Error(err))
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	return Entry{ID: id, Title: rec.Title, Description: rec.Description}, true
}

// Complete returns the first known identifier containing fragment, looking
// in the official catalog before the third-party store.
func (s *Service) Complete(ctx context.Context, fragment string) (uuid.UUID, bool) {
	if s == nil {
		return uuid.Nil, false
	}
	if ids := s.official.Match(fragment); len(ids) > 0 {
		return ids[0], true
	}
	if s.thirdParty == nil {
		return uuid.Nil, false
	}
	ids, err := s.thirdParty.Match(ctx, fragment)
	if err != nil {
		s.logger.Debug("third-party match failed", logging.String("fragment", fragment), logging.Error(err))
		return uuid.Nil, false
	}
	if len(ids) == 0 {
		return uuid.Nil, false
	}
	return ids[0], true
}

// Remember stores the metadata and thumbnail found in an imported archive.
func (s *Service) Remember(ctx context.Context, id uuid.UUID, meta *Metadata, thumbnail []byte) error {
	if s == nil || s.thirdParty == nil {
		return nil
	}
	if meta != nil {
		if err := s.thirdParty.Put(ctx, id, meta.Title, meta.Description); err != nil {
			return err
		}
	}
	if len(thumbnail) > 0 {
		if err := s.thirdParty.PutThumbnail(ctx, id, thumbnail); err != nil {
			return err
		}
	}
	return nil
}

// ThirdPartyFiles returns the "_metadata.json" document and thumbnail to
// embed in an exported archive of id. Both are nil for official content or
// content the store does not know.
func (s *Service) ThirdPartyFiles(ctx context.Context, id uuid.UUID) ([]byte, []byte, error) {
	if s == nil || s.thirdParty == nil || s.IsOfficial(id) {
		return nil, nil, nil
	}
	rec, ok, err := s.thirdParty.Get(ctx, id)
	if err != nil || !ok {
		return nil, nil, err
	}
	var meta []byte
	if rec.Title != "" || rec.Description != "" {
		meta, err = json.Marshal(Metadata{UUID: strings.ToUpper(id.String()), Title: rec.Title, Description: rec.Description})
		if err != nil {
			return nil, nil, err
		}
	}
	return meta, rec.Thumbnail, nil
}
