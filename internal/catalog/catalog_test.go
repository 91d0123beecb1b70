package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"storypack/internal/catalog"
	"storypack/internal/logging"
	"storypack/internal/testsupport"
)

const catalogBody = `{"response": {
  "pack-a": {
    "uuid": "9d9521e5-84ac-4cc8-9b09-8d0affb5d68a",
    "locales_available": {"fr_FR": {}, "en_GB": {}},
    "localized_infos": {
      "en_GB": {"title": "Wrong locale"},
      "fr_FR": {
        "title": "Suzanne et Gaston",
        "description": "<link href=\"x\">Une histoire",
        "image": {"image_url": "/covers/a.png"}
      }
    }
  },
  "pack-b": {
    "uuid": "22137B29-8646-4335-8069-4A4C9A2D7E89",
    "title": "Top level title",
    "locales_available": {"fr_FR": {}},
    "localized_infos": {"fr_FR": {"title": "Localized"}}
  },
  "broken": {"uuid": "not-a-uuid"}
}}`

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenDownloadsAndParsesCatalog(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(srv.URL))
	cfg.Catalog.ImageBaseURL = "https://img.example"

	svc, err := catalog.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer svc.Close()

	if hits.Load() != 1 {
		t.Fatalf("expected one download, got %d", hits.Load())
	}
	if name, ok := svc.NameFor(testsupport.StoryA); !ok || name != "Suzanne et Gaston" {
		t.Fatalf("NameFor(A) = %q, %v", name, ok)
	}
	if name := svc.DisplayName(testsupport.StoryB); name != "Top level title" {
		t.Fatalf("DisplayName(B) = %q", name)
	}
	if name := svc.DisplayName(testsupport.StoryC); name != catalog.UnknownName {
		t.Fatalf("DisplayName(C) = %q", name)
	}
	entry, ok := svc.Lookup(context.Background(), testsupport.StoryA)
	if !ok || entry.Description != "Une histoire" || entry.ImageURL != "https://img.example/covers/a.png" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if id, ok := svc.Complete(context.Background(), "ffb5d68a"); !ok || id != testsupport.StoryA {
		t.Fatalf("Complete(ffb5d68a) = %s, %v", id, ok)
	}
	if _, ok := svc.Complete(context.Background(), "6C8D9CF1"); ok {
		t.Fatal("story C is not in the official catalog")
	}
	if svc.Official().Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", svc.Official().Len())
	}

	// A fresh mirror is not downloaded again.
	again, err := catalog.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if hits.Load() != 1 {
		t.Fatalf("fresh mirror should not be refreshed, hits=%d", hits.Load())
	}
}

func TestOfflineCatalogKnowsNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc, err := catalog.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer svc.Close()
	if _, ok := svc.NameFor(testsupport.StoryA); ok {
		t.Fatal("offline catalog should not know any content")
	}
	if _, err := os.Stat(cfg.OfficialCatalogPath()); !os.IsNotExist(err) {
		t.Fatalf("offline catalog must not create a mirror: %v", err)
	}
}

func TestFailedRefreshKeepsWorking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cfg := testsupport.NewConfig(t, testsupport.WithCatalogURL(srv.URL))

	svc, err := catalog.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("open should tolerate a failed refresh: %v", err)
	}
	defer svc.Close()
	if err := svc.Official().Refresh(context.Background()); err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestThirdPartyRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()
	svc, err := catalog.Open(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer svc.Close()

	meta := &catalog.Metadata{UUID: testsupport.StoryC.String(), Title: "Homemade", Description: "Made at home"}
	if err := svc.Remember(ctx, testsupport.StoryC, meta, []byte("png-bytes")); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if name := svc.DisplayName(testsupport.StoryC); name != "Homemade" {
		t.Fatalf("DisplayName = %q", name)
	}

	metaJSON, thumb, err := svc.ThirdPartyFiles(ctx, testsupport.StoryC)
	if err != nil {
		t.Fatalf("third-party files: %v", err)
	}
	if string(thumb) != "png-bytes" {
		t.Fatalf("thumbnail = %q", thumb)
	}
	var decoded catalog.Metadata
	if err := json.Unmarshal(metaJSON, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Title != "Homemade" || !strings.EqualFold(decoded.UUID, testsupport.StoryC.String()) {
		t.Fatalf("unexpected metadata %+v", decoded)
	}

	if id, ok := svc.Complete(ctx, "6C8D9CF1"); !ok || id != testsupport.StoryC {
		t.Fatalf("Complete(6C8D9CF1) = %s, %v", id, ok)
	}
	if _, ok := svc.Complete(ctx, "DEADBEEF"); ok {
		t.Fatal("unknown fragment must not complete")
	}

	if meta, thumb, err := svc.ThirdPartyFiles(ctx, testsupport.StoryA); err != nil || meta != nil || thumb != nil {
		t.Fatalf("unknown content should carry no files: %q %q %v", meta, thumb, err)
	}
}

func TestNilServiceIsUnknown(t *testing.T) {
	var svc *catalog.Service
	if svc.DisplayName(testsupport.StoryA) != catalog.UnknownName {
		t.Fatal("nil service should report unknown names")
	}
	if _, ok := svc.Complete(context.Background(), "FFB5D68A"); ok {
		t.Fatal("nil service completes nothing")
	}
}
