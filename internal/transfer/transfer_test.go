package transfer_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"storypack/internal/catalog"
	"storypack/internal/cipher"
	"storypack/internal/contentindex"
	"storypack/internal/devicemeta"
	"storypack/internal/faults"
	"storypack/internal/logging"
	"storypack/internal/testsupport"
	"storypack/internal/transfer"
)

func plentyOfSpace(string) (uint64, error) { return 1 << 40, nil }

func luniiTarget(t *testing.T, md []byte) transfer.Target {
	t.Helper()
	root := testsupport.NewLuniiRoot(t, md)
	identity, err := devicemeta.Identify(md)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	ix, err := contentindex.Open(contentindex.NewBinaryStore(root, logging.NewNop()), logging.NewNop())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	return transfer.Target{Root: root, Identity: identity, Index: ix}
}

func flamTarget(t *testing.T) transfer.Target {
	t.Helper()
	mdf := testsupport.FlamMetadata(t)
	root := testsupport.NewFlamRoot(t, mdf)
	identity, err := devicemeta.IdentifyFlam(mdf)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	ix, err := contentindex.Open(contentindex.NewTextStore(root, logging.NewNop()), logging.NewNop())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	return transfer.Target{Root: root, Identity: identity, Index: ix}
}

func laterRegion() []byte {
	return testsupport.Pattern(32, 0x5A)
}

func newImporter(target transfer.Target, opts transfer.ImporterOptions) *transfer.Importer {
	if opts.FreeSpace == nil {
		opts.FreeSpace = plentyOfSpace
	}
	opts.Logger = logging.NewNop()
	return transfer.NewImporter(target, opts)
}

type fakeNames struct {
	names map[uuid.UUID]string
	meta  map[uuid.UUID]*catalog.Metadata
	thumb map[uuid.UUID][]byte
}

func newFakeNames() *fakeNames {
	return &fakeNames{
		names: map[uuid.UUID]string{},
		meta:  map[uuid.UUID]*catalog.Metadata{},
		thumb: map[uuid.UUID][]byte{},
	}
}

func (f *fakeNames) DisplayName(id uuid.UUID) string {
	if n, ok := f.names[id]; ok {
		return n
	}
	return catalog.UnknownName
}

func (f *fakeNames) ThirdPartyFiles(_ context.Context, id uuid.UUID) ([]byte, []byte, error) {
	var meta []byte
	if m, ok := f.meta[id]; ok {
		meta = []byte(`{"uuid":"` + m.UUID + `","title":"` + m.Title + `"}`)
	}
	return meta, f.thumb[id], nil
}

func (f *fakeNames) Remember(_ context.Context, id uuid.UUID, meta *catalog.Metadata, thumb []byte) error {
	if meta != nil {
		f.meta[id] = meta
		f.names[id] = meta.Title
	}
	if thumb != nil {
		f.thumb[id] = thumb
	}
	return nil
}

func plainByName() map[string][]byte {
	out := map[string][]byte{}
	for _, e := range testsupport.PlainStory() {
		out[e.Name] = e.Data
	}
	return out
}

func TestPortableRoundTripOnLegacyDevice(t *testing.T) {
	target := luniiTarget(t, testsupport.LegacyMetadata(t))
	im := newImporter(target, transfer.ImporterOptions{})
	src := testsupport.PortableArchive(t, t.TempDir(), "a.plain.pk", testsupport.StoryA[:])

	id, err := im.Import(context.Background(), src)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if id != testsupport.StoryA || !target.Index.Has(id) {
		t.Fatalf("identifier %s not indexed", id)
	}

	dir := filepath.Join(target.Root, ".content", "FFB5D68A")
	for _, name := range []string{"ni", "li", "ri", "si", "bt", "rf/000/AAAABBBB", "sf/000/CCCCDDDD"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing on-device file %s: %v", name, err)
		}
	}
	plain := plainByName()
	ni := testsupport.ReadFile(t, filepath.Join(dir, "ni"))
	if !bytes.Equal(ni, plain["ni"]) {
		t.Fatal("ni must be stored in clear")
	}
	ri := testsupport.ReadFile(t, filepath.Join(dir, "ri"))
	wantRI, _ := cipher.EncipherHeader(plain["ri.plain"], cipher.GenericKey())
	if !bytes.Equal(ri, wantRI) {
		t.Fatal("ri must be ciphered with the generic key")
	}
	bt := testsupport.ReadFile(t, filepath.Join(dir, "bt"))
	if !target.Identity.VerifyAuthorization(bt, ri) {
		t.Fatal("authorization marker does not match ri")
	}

	names := newFakeNames()
	names.names[testsupport.StoryA] = "Suzanne: l'été"
	ex := transfer.NewExporter(target, names, logging.NewNop())
	outDir := t.TempDir()
	archive, err := ex.Export(context.Background(), "d68a", outDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(archive) != "Suzanne_ l'ete.FFB5D68A.plain.pk" {
		t.Fatalf("unexpected archive name %q", filepath.Base(archive))
	}
	entries := testsupport.ReadZip(t, archive)
	for name, data := range plain {
		if !bytes.Equal(entries[name], data) {
			t.Fatalf("exported %s differs from the source entry", name)
		}
	}
	if _, ok := entries["bt"]; ok {
		t.Fatal("authorization marker must not be exported")
	}
	if !bytes.Equal(entries["uuid.bin"], testsupport.StoryA[:]) {
		t.Fatal("identifier marker lost in export")
	}
	leftovers, _ := filepath.Glob(filepath.Join(outDir, ".storypack-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}

	if _, err := im.Import(context.Background(), archive); !errors.Is(err, faults.ErrAlreadyInstalled) {
		t.Fatalf("re-import should be rejected as already installed, got %v", err)
	}
}

func TestPortableRoundTripOnLaterDevice(t *testing.T) {
	for _, version := range []int{6, 7} {
		target := luniiTarget(t, testsupport.LaterMetadata(t, version, laterRegion()))
		im := newImporter(target, transfer.ImporterOptions{})
		src := testsupport.PortableArchive(t, t.TempDir(), "b.plain.pk", testsupport.StoryB[:])
		if _, err := im.Import(context.Background(), src); err != nil {
			t.Fatalf("v%d import: %v", version, err)
		}
		dir := filepath.Join(target.Root, ".content", "9A2D7E89")
		bt := testsupport.ReadFile(t, filepath.Join(dir, "bt"))
		if !bytes.Equal(bt, target.Identity.AuthBlob) {
			t.Fatalf("v%d: bt must hold the identity authorization blob", version)
		}
		image := testsupport.ReadFile(t, filepath.Join(dir, "rf", "000", "AAAABBBB"))
		plainImage := plainByName()["rf/000/AAAABBBB.bmp"]
		if bytes.Equal(image[:16], plainImage[:16]) || !bytes.Equal(image[512:], plainImage[512:]) {
			t.Fatalf("v%d: only the image header must be ciphered", version)
		}

		archive, err := transfer.NewExporter(target, nil, logging.NewNop()).Export(context.Background(), "7E89", t.TempDir())
		if err != nil {
			t.Fatalf("v%d export: %v", version, err)
		}
		entries := testsupport.ReadZip(t, archive)
		for name, data := range plainByName() {
			if !bytes.Equal(entries[name], data) {
				t.Fatalf("v%d: exported %s differs from the source entry", version, name)
			}
		}
	}
}

func TestLaterImportUsesMetadataKey(t *testing.T) {
	target := luniiTarget(t, testsupport.LaterMetadata(t, 7, laterRegion()))
	keysDir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(keysDir, devicemeta.KeyFileName(target.Identity.SerialString())),
		testsupport.KeyFileHex(testsupport.Pattern(16, 21), testsupport.Pattern(16, 42)))
	if loaded, err := target.Identity.LoadKeys(keysDir, ""); err != nil || !loaded {
		t.Fatalf("load keys: %v %v", loaded, err)
	}

	src := testsupport.PortableArchive(t, t.TempDir(), "b.plain.pk", testsupport.StoryB[:])
	if _, err := newImporter(target, transfer.ImporterOptions{}).Import(context.Background(), src); err != nil {
		t.Fatalf("import: %v", err)
	}
	dir := filepath.Join(target.Root, ".content", "9A2D7E89")
	metadataKeys := cipher.KeySet{Device: target.Identity.DeviceKey, Content: target.Identity.ContentFallback}
	ri, err := metadataKeys.Decipher("ri", testsupport.ReadFile(t, filepath.Join(dir, "ri")))
	if err != nil || !bytes.Equal(ri, plainByName()["ri.plain"]) {
		t.Fatalf("ri must be ciphered with the metadata key: %q %v", ri, err)
	}

	archive, err := transfer.NewExporter(target, nil, logging.NewNop()).Export(context.Background(), "7e89", t.TempDir())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	entries := testsupport.ReadZip(t, archive)
	for name, data := range plainByName() {
		if !bytes.Equal(entries[name], data) {
			t.Fatalf("exported %s differs from the source entry", name)
		}
	}
}

func TestLaterExportRejectsUnreadableContent(t *testing.T) {
	target := luniiTarget(t, testsupport.LaterMetadata(t, 7, laterRegion()))
	dir := filepath.Join(target.Root, ".content", "FFB5D68A")
	testsupport.WriteFile(t, filepath.Join(dir, "ri"), testsupport.Pattern(64, 3))
	testsupport.WriteFile(t, filepath.Join(dir, "ni"), testsupport.Pattern(64, 4))
	if err := target.Index.Append(contentindex.Record{ID: testsupport.StoryA}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, err := transfer.NewExporter(target, nil, logging.NewNop()).Export(context.Background(), "d68a", t.TempDir())
	if !errors.Is(err, faults.ErrUnsupportedCapability) {
		t.Fatalf("expected unsupported capability, got %v", err)
	}
}

func TestLegacyArchivesImport(t *testing.T) {
	prefix := testsupport.StoryC.String() + "/"
	tests := []struct {
		name    string
		md      func(*testing.T) []byte
		archive string
		entries []testsupport.Entry
	}{
		{
			name:    "v2 archive on legacy device",
			md:      testsupport.LegacyMetadata,
			archive: "c.v2.pk",
			entries: testsupport.LegacyStory(t, prefix, 0x40),
		},
		{
			name:    "v2 archive on later device",
			md:      func(t *testing.T) []byte { return testsupport.LaterMetadata(t, 7, laterRegion()) },
			archive: "c.v2.pk",
			entries: testsupport.LegacyStory(t, prefix, 0x40),
		},
		{
			name:    "generic zip on legacy device",
			md:      testsupport.LegacyMetadata,
			archive: "c.zip",
			entries: append([]testsupport.Entry{{Name: "uuid.bin", Data: testsupport.StoryC[:]}}, testsupport.LegacyStory(t, "", 0x40)...),
		},
		{
			name:    "generic zip on later device",
			md:      func(t *testing.T) []byte { return testsupport.LaterMetadata(t, 6, laterRegion()) },
			archive: "c.zip",
			entries: append([]testsupport.Entry{{Name: "uuid.bin", Data: testsupport.StoryC[:]}}, testsupport.LegacyStory(t, "", 0)...),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			target := luniiTarget(t, tc.md(t))
			src := testsupport.WriteZip(t, filepath.Join(t.TempDir(), tc.archive), tc.entries)
			id, err := newImporter(target, transfer.ImporterOptions{}).Import(context.Background(), src)
			if err != nil {
				t.Fatalf("import: %v", err)
			}
			if id != testsupport.StoryC {
				t.Fatalf("identifier = %s", id)
			}
			archive, err := transfer.NewExporter(target, nil, logging.NewNop()).Export(context.Background(), "9CF1", t.TempDir())
			if err != nil {
				t.Fatalf("export: %v", err)
			}
			entries := testsupport.ReadZip(t, archive)
			for name, data := range plainByName() {
				if !bytes.Equal(entries[name], data) {
					t.Fatalf("exported %s differs from the source entry", name)
				}
			}
		})
	}
}

func TestImportRejections(t *testing.T) {
	dir := t.TempDir()
	prefix := testsupport.StoryA.String() + "/"
	tests := []struct {
		name    string
		path    string
		free    uint64
		wantErr error
	}{
		{
			name:    "missing marker",
			path:    testsupport.WriteZip(t, filepath.Join(dir, "a.plain.pk"), testsupport.PlainStory()),
			wantErr: faults.ErrCorruptArchive,
		},
		{
			name:    "not a zip",
			path:    writeRaw(t, filepath.Join(dir, "b.plain.pk"), []byte("garbage")),
			wantErr: faults.ErrCorruptArchive,
		},
		{
			name:    "later generation archive",
			path:    testsupport.WriteZip(t, filepath.Join(dir, "c.pk"), testsupport.LegacyStory(t, prefix, 0x20)),
			wantErr: faults.ErrUnsupportedCapability,
		},
		{
			name: "studio archive",
			path: testsupport.WriteZip(t, filepath.Join(dir, "d.zip"), []testsupport.Entry{
				{Name: "story.json", Data: []byte("{}")},
				{Name: "assets/a.mp3", Data: []byte("ID3")},
			}),
			wantErr: faults.ErrUnsupportedCapability,
		},
		{
			name:    "metadata for another content",
			path:    testsupport.PortableArchive(t, dir, "e.plain.pk", testsupport.StoryA[:], testsupport.Entry{Name: "_metadata.json", Data: []byte(`{"uuid":"` + testsupport.StoryB.String() + `"}`)}),
			wantErr: faults.ErrCorruptArchive,
		},
		{
			name:    "no space left",
			path:    testsupport.PortableArchive(t, dir, "f.plain.pk", testsupport.StoryA[:]),
			free:    16,
			wantErr: faults.ErrInsufficientSpace,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			target := luniiTarget(t, testsupport.LegacyMetadata(t))
			opts := transfer.ImporterOptions{}
			if tc.free > 0 {
				free := tc.free
				opts.FreeSpace = func(string) (uint64, error) { return free, nil }
			}
			_, err := newImporter(target, opts).Import(context.Background(), tc.path)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if target.Index.Len() != 0 {
				t.Fatal("rejected archive must not be indexed")
			}
			entries, _ := os.ReadDir(filepath.Join(target.Root, ".content"))
			if len(entries) != 0 {
				t.Fatalf("rejected archive left %d directories", len(entries))
			}
		})
	}
}

func writeRaw(t *testing.T, p string, data []byte) string {
	t.Helper()
	testsupport.WriteFile(t, p, data)
	return p
}

func TestThirdPartyMetadataTravels(t *testing.T) {
	target := luniiTarget(t, testsupport.LegacyMetadata(t))
	names := newFakeNames()
	meta := testsupport.Entry{Name: "_metadata.json", Data: []byte(`{"uuid":"` + strings.ToUpper(testsupport.StoryC.String()) + `","title":"Homemade","description":"d"}`)}
	thumb := testsupport.Entry{Name: "_thumbnail.png", Data: []byte("png")}
	src := testsupport.PortableArchive(t, t.TempDir(), "c.plain.pk", testsupport.StoryC[:], meta, thumb)

	im := newImporter(target, transfer.ImporterOptions{Metadata: names})
	if _, err := im.Import(context.Background(), src); err != nil {
		t.Fatalf("import: %v", err)
	}
	if names.names[testsupport.StoryC] != "Homemade" || string(names.thumb[testsupport.StoryC]) != "png" {
		t.Fatal("metadata not recorded")
	}
	if _, err := os.Stat(filepath.Join(target.Root, ".content", "6C8D9CF1", "_metadata.json")); err == nil {
		t.Fatal("metadata must not be written to the device")
	}

	archive, err := transfer.NewExporter(target, names, logging.NewNop()).Export(context.Background(), "9cf1", t.TempDir())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(archive), "Homemade.") {
		t.Fatalf("unexpected archive name %s", archive)
	}
	entries := testsupport.ReadZip(t, archive)
	if string(entries["_thumbnail.png"]) != "png" || len(entries["_metadata.json"]) == 0 {
		t.Fatal("third-party files missing from export")
	}
}

func TestCancelledImportLeavesNothing(t *testing.T) {
	target := luniiTarget(t, testsupport.LegacyMetadata(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	im := newImporter(target, transfer.ImporterOptions{
		// The space check runs after the archive is opened and before any
		// file is written.
		FreeSpace: func(string) (uint64, error) {
			cancel()
			return 1 << 40, nil
		},
	})
	src := testsupport.PortableArchive(t, t.TempDir(), "a.plain.pk", testsupport.StoryA[:])
	_, err := im.Import(ctx, src)
	if !errors.Is(err, faults.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(target.Root, ".content", "FFB5D68A")); !os.IsNotExist(statErr) {
		t.Fatalf("partial content directory left behind: %v", statErr)
	}
	if target.Index.Len() != 0 {
		t.Fatal("cancelled import must not touch the index")
	}
}

func TestImportDirectoryContinuesPastFailures(t *testing.T) {
	target := luniiTarget(t, testsupport.LegacyMetadata(t))
	dir := t.TempDir()
	testsupport.PortableArchive(t, dir, "a.plain.pk", testsupport.StoryA[:])
	testsupport.PortableArchive(t, filepath.Join(dir, "nested"), "b.plain.pk", testsupport.StoryB[:])
	writeRaw(t, filepath.Join(dir, "broken.zip"), []byte("nope"))
	writeRaw(t, filepath.Join(dir, "notes.txt"), []byte("ignored"))

	results, err := newImporter(target, transfer.ImporterOptions{}).ImportDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("import directory: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			if !errors.Is(r.Err, faults.ErrCorruptArchive) {
				t.Fatalf("unexpected failure %v", r.Err)
			}
		}
	}
	if failed != 1 || target.Index.Len() != 2 {
		t.Fatalf("failed=%d indexed=%d", failed, target.Index.Len())
	}
}

func TestExportAllSkipsMissingContent(t *testing.T) {
	target := luniiTarget(t, testsupport.LegacyMetadata(t))
	im := newImporter(target, transfer.ImporterOptions{})
	src := t.TempDir()
	for i, id := range []uuid.UUID{testsupport.StoryA, testsupport.StoryB, testsupport.StoryC} {
		p := testsupport.PortableArchive(t, src, string(rune('a'+i))+".plain.pk", id[:])
		if _, err := im.Import(context.Background(), p); err != nil {
			t.Fatalf("import %s: %v", id, err)
		}
	}
	if err := os.RemoveAll(filepath.Join(target.Root, ".content", "9A2D7E89")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	paths, err := transfer.NewExporter(target, nil, logging.NewNop()).ExportAll(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("export all: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 archives, got %d", len(paths))
	}
}

func TestExportResolvesQueries(t *testing.T) {
	target := luniiTarget(t, testsupport.LegacyMetadata(t))
	ex := transfer.NewExporter(target, nil, logging.NewNop())
	if _, err := ex.Export(context.Background(), "ffff", t.TempDir()); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := target.Index.Append(contentindex.Record{ID: testsupport.StoryA}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := ex.Export(context.Background(), "d68a", t.TempDir()); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("indexed content without a directory should be not found, got %v", err)
	}
}

func TestFlamRoundTrip(t *testing.T) {
	target := flamTarget(t)
	prefix := testsupport.StoryB.String() + "/"
	files := []testsupport.Entry{
		{Name: prefix + "media/track01.mp3", Data: testsupport.Pattern(700, 5)},
		{Name: prefix + "info.json", Data: []byte(`{"title":"x"}`)},
	}
	src := testsupport.WriteZip(t, filepath.Join(t.TempDir(), "flam.zip"), files)
	im := newImporter(target, transfer.ImporterOptions{})
	if _, err := im.Import(context.Background(), src); err != nil {
		t.Fatalf("import: %v", err)
	}
	stored := testsupport.ReadFile(t, filepath.Join(target.Root, "str", testsupport.StoryB.String(), "media", "track01.mp3"))
	if !bytes.Equal(stored, files[0].Data) {
		t.Fatal("flam content must be stored verbatim")
	}

	archive, err := transfer.NewExporter(target, nil, logging.NewNop()).Export(context.Background(), "7e89", t.TempDir())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasSuffix(archive, ".9A2D7E89.zip") {
		t.Fatalf("unexpected archive name %s", archive)
	}
	entries := testsupport.ReadZip(t, archive)
	for _, f := range files {
		if !bytes.Equal(entries[f.Name], f.Data) {
			t.Fatalf("exported %s differs", f.Name)
		}
	}
	if _, err := im.Import(context.Background(), archive); !errors.Is(err, faults.ErrAlreadyInstalled) {
		t.Fatalf("expected already installed, got %v", err)
	}
}

func TestFlamRejectsForeignArchives(t *testing.T) {
	target := flamTarget(t)
	dir := t.TempDir()
	for _, p := range []string{
		testsupport.PortableArchive(t, dir, "lunii.zip", testsupport.StoryA[:]),
		testsupport.PortableArchive(t, dir, "lunii.plain.pk", testsupport.StoryA[:]),
	} {
		if _, err := newImporter(target, transfer.ImporterOptions{}).Import(context.Background(), p); !errors.Is(err, faults.ErrUnsupportedCapability) {
			t.Fatalf("%s: expected unsupported capability, got %v", filepath.Base(p), err)
		}
	}
	escape := testsupport.WriteZip(t, filepath.Join(dir, "escape.zip"), []testsupport.Entry{
		{Name: testsupport.StoryC.String() + "/info.json", Data: []byte("{}")},
		{Name: testsupport.StoryC.String() + "/../../evil", Data: []byte("x")},
	})
	if _, err := newImporter(target, transfer.ImporterOptions{}).Import(context.Background(), escape); !errors.Is(err, faults.ErrCorruptArchive) {
		t.Fatalf("expected corrupt archive for path traversal, got %v", err)
	}
}

func TestDuplicateReportedBeforeSpace(t *testing.T) {
	target := luniiTarget(t, testsupport.LegacyMetadata(t))
	src := testsupport.PortableArchive(t, t.TempDir(), "a.plain.pk", testsupport.StoryA[:])
	if _, err := newImporter(target, transfer.ImporterOptions{}).Import(context.Background(), src); err != nil {
		t.Fatalf("import: %v", err)
	}
	full := func(string) (uint64, error) { return 16, nil }
	_, err := newImporter(target, transfer.ImporterOptions{FreeSpace: full}).Import(context.Background(), src)
	if !errors.Is(err, faults.ErrAlreadyInstalled) {
		t.Fatalf("expected already installed on a full device, got %v", err)
	}
}

func TestCheckInstalledContent(t *testing.T) {
	target := luniiTarget(t, testsupport.LegacyMetadata(t))
	src := testsupport.PortableArchive(t, t.TempDir(), "a.plain.pk", testsupport.StoryA[:])
	if _, err := newImporter(target, transfer.ImporterOptions{}).Import(context.Background(), src); err != nil {
		t.Fatalf("import: %v", err)
	}
	dir := target.ContentDir(testsupport.StoryA)

	if badAuth, err := target.Check(dir, false); err != nil || badAuth {
		t.Fatalf("fresh content: badAuth=%v err=%v", badAuth, err)
	}

	good := testsupport.ReadFile(t, filepath.Join(dir, "bt"))
	testsupport.WriteFile(t, filepath.Join(dir, "bt"), testsupport.Pattern(64, 7))
	if badAuth, err := target.Check(dir, false); err != nil || !badAuth {
		t.Fatalf("tampered bt: badAuth=%v err=%v", badAuth, err)
	}
	if bytes.Equal(testsupport.ReadFile(t, filepath.Join(dir, "bt")), good) {
		t.Fatal("bt must not be rewritten without repair")
	}
	if badAuth, err := target.Check(dir, true); err != nil || !badAuth {
		t.Fatalf("repair: badAuth=%v err=%v", badAuth, err)
	}
	if !bytes.Equal(testsupport.ReadFile(t, filepath.Join(dir, "bt")), good) {
		t.Fatal("repaired bt differs from the authorization built at import")
	}

	if err := os.Remove(filepath.Join(dir, "sf", "000", "CCCCDDDD")); err != nil {
		t.Fatalf("remove asset: %v", err)
	}
	if _, err := target.Check(dir, false); !errors.Is(err, faults.ErrCorruptArchive) {
		t.Fatalf("missing sound asset: expected corrupt archive, got %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "li")); err != nil {
		t.Fatalf("remove li: %v", err)
	}
	if _, err := target.Check(dir, false); !errors.Is(err, faults.ErrCorruptArchive) {
		t.Fatalf("missing li: expected corrupt archive, got %v", err)
	}
}

func TestCheckAcceptsUnreadableLaterContent(t *testing.T) {
	target := luniiTarget(t, testsupport.LaterMetadata(t, 7, laterRegion()))
	dir := filepath.Join(target.ContentRoot(), "FFB5D68A")
	for _, name := range []string{"ni", "li", "ri", "si"} {
		testsupport.WriteFile(t, filepath.Join(dir, name), testsupport.Pattern(64, 5))
	}
	if badAuth, err := target.Check(dir, true); err != nil || badAuth {
		t.Fatalf("badAuth=%v err=%v", badAuth, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bt")); !os.IsNotExist(err) {
		t.Fatal("later devices never get a rewritten bt")
	}
	if badAuth, err := flamTarget(t).Check(t.TempDir(), true); err != nil || badAuth {
		t.Fatalf("flam: badAuth=%v err=%v", badAuth, err)
	}
}
