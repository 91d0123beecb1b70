package device

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"storypack/internal/catalog"
	"storypack/internal/contentindex"
	"storypack/internal/devicemeta"
	"storypack/internal/faults"
	"storypack/internal/transfer"
)

// base carries the state shared by both families.
type base struct {
	target   transfer.Target
	catalog  Catalog
	importer *transfer.Importer
	exporter *transfer.Exporter
	logger   *slog.Logger
}

func newBase(root string, identity *devicemeta.Identity, store contentindex.Store, opts Options, logger *slog.Logger) (*base, error) {
	index, err := contentindex.Open(store, logger)
	if err != nil {
		return nil, err
	}
	target := transfer.Target{Root: root, Identity: identity, Index: index}
	return &base{
		target:  target,
		catalog: opts.Catalog,
		importer: transfer.NewImporter(target, transfer.ImporterOptions{
			Metadata:  opts.Catalog,
			Margin:    opts.Margin,
			FreeSpace: opts.FreeSpace,
			Logger:    logger,
		}),
		exporter: transfer.NewExporter(target, opts.Catalog, logger),
		logger:   logger,
	}, nil
}

func (b *base) Root() string { return b.target.Root }

func (b *base) Identity() *devicemeta.Identity { return b.target.Identity }

func (b *base) List(includeHidden bool) []Content {
	return b.contents(b.target.Index.Records(includeHidden))
}

func (b *base) Find(query string) []Content {
	return b.contents(b.target.Index.Find(query))
}

func (b *base) Import(ctx context.Context, archivePath string) (uuid.UUID, error) {
	return b.importer.Import(ctx, archivePath)
}

func (b *base) Export(ctx context.Context, query, outDir string) (string, error) {
	return b.exporter.Export(ctx, query, outDir)
}

func (b *base) contents(records []contentindex.Record) []Content {
	out := make([]Content, 0, len(records))
	for _, rec := range records {
		out = append(out, b.content(rec))
	}
	return out
}

func (b *base) content(rec contentindex.Record) Content {
	name := catalog.UnknownName
	if b.catalog != nil {
		name = b.catalog.DisplayName(rec.ID)
	}
	return Content{Record: rec, Name: name}
}

// Lunii is a Lunii storyteller of any layout.
type Lunii struct {
	*base
}

func (d *Lunii) Capabilities() Capabilities { return allCapabilities }

func (d *Lunii) ImportDirectory(ctx context.Context, dir string) ([]transfer.Result, error) {
	return d.importer.ImportDirectory(ctx, dir)
}

func (d *Lunii) ExportAll(ctx context.Context, outDir string) ([]string, error) {
	return d.exporter.ExportAll(ctx, outDir)
}

// Flam is a Flam storyteller. It installs and exports one content at a time.
type Flam struct {
	*base
}

func (d *Flam) Capabilities() Capabilities {
	return allCapabilities.Without(CapImportDirectory, CapExportAll)
}

func (d *Flam) ImportDirectory(context.Context, string) ([]transfer.Result, error) {
	return nil, unsupported(CapImportDirectory, d.target.Identity)
}

func (d *Flam) ExportAll(context.Context, string) ([]string, error) {
	return nil, unsupported(CapExportAll, d.target.Identity)
}

func unsupported(c Capability, identity *devicemeta.Identity) error {
	return faults.Wrap(faults.ErrUnsupportedCapability, "device", c.String(),
		identity.Family.String()+" devices do not support this operation", nil)
}

var (
	_ Adapter = (*Lunii)(nil)
	_ Adapter = (*Flam)(nil)
)
