package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Importer loads price CSV files from its sources into the repository.
// Files whose fingerprint matches the last import are skipped.
type Importer struct {
	repo     *Repository
	sources  []Source
	onImport func(symbols []string)
	log      zerolog.Logger
}

// NewImporter creates an importer over the given sources
func NewImporter(repo *Repository, log zerolog.Logger, sources ...Source) *Importer {
	return &Importer{
		repo:    repo,
		sources: sources,
		log:     log.With().Str("component", "price_importer").Logger(),
	}
}

// OnImport registers a callback invoked with the symbols whose prices changed
func (i *Importer) OnImport(fn func(symbols []string)) {
	i.onImport = fn
}

// Sources returns the number of configured sources
func (i *Importer) Sources() int {
	return len(i.sources)
}

// Run imports every new or changed file. A failing file is logged and counted;
// the returned error joins source listing failures.
func (i *Importer) Run(ctx context.Context) (ImportSummary, error) {
	var (
		summary ImportSummary
		errs    []error
	)
	touched := make(map[string]struct{})

	for _, src := range i.sources {
		files, err := src.List(ctx)
		if err != nil {
			i.log.Error().Err(err).Str("source", src.Name()).Msg("Failed to list price files")
			errs = append(errs, err)
			continue
		}

		for _, f := range files {
			summary.Files++
			recordKey := src.Name() + "|" + f.Key

			prev, err := i.repo.GetImport(ctx, recordKey)
			if err != nil {
				return summary, err
			}
			if prev != nil && prev.Fingerprint == f.Fingerprint {
				summary.Skipped++
				continue
			}

			rows, symbols, err := i.importFile(ctx, src, f.Key)
			if err != nil {
				i.log.Error().Err(err).Str("source", src.Name()).Str("file", f.Key).Msg("Failed to import price file")
				summary.Failed++
				continue
			}

			if err := i.repo.RecordImport(ctx, ImportRecord{
				Source:      recordKey,
				Fingerprint: f.Fingerprint,
				Rows:        rows,
				ImportedAt:  time.Now(),
			}); err != nil {
				return summary, err
			}

			summary.Rows += rows
			for _, s := range symbols {
				touched[s] = struct{}{}
			}
			i.log.Info().Str("file", f.Key).Int("rows", rows).Int("symbols", len(symbols)).Msg("Imported price file")
		}
	}

	summary.Symbols = make([]string, 0, len(touched))
	for s := range touched {
		summary.Symbols = append(summary.Symbols, s)
	}
	sort.Strings(summary.Symbols)

	if len(summary.Symbols) > 0 && i.onImport != nil {
		i.onImport(summary.Symbols)
	}
	return summary, errors.Join(errs...)
}

func (i *Importer) importFile(ctx context.Context, src Source, key string) (int, []string, error) {
	rc, err := src.Open(ctx, key)
	if err != nil {
		return 0, nil, err
	}
	defer rc.Close()

	return i.ImportReader(ctx, rc)
}

// ImportReader parses one CSV stream and stores its rows
func (i *Importer) ImportReader(ctx context.Context, r io.Reader) (int, []string, error) {
	assets, err := ParseCSV(r)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to parse price csv: %w", err)
	}

	rows := 0
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		if err := i.repo.UpsertSecurity(ctx, a.Symbol, a.Name); err != nil {
			return rows, symbols, err
		}
		n, err := i.repo.InsertPrices(ctx, a.Symbol, a.Prices)
		if err != nil {
			return rows, symbols, err
		}
		rows += n
		symbols = append(symbols, a.Symbol)
	}
	return rows, symbols, nil
}

// ImportJob runs the importer on a schedule
type ImportJob struct {
	importer *Importer
	timeout  time.Duration
	log      zerolog.Logger
}

// NewImportJob creates the scheduled price import job
func NewImportJob(importer *Importer, log zerolog.Logger) *ImportJob {
	return &ImportJob{
		importer: importer,
		timeout:  10 * time.Minute,
		log:      log.With().Str("job", "price_import").Logger(),
	}
}

// Name returns the job name
func (j *ImportJob) Name() string {
	return "price_import"
}

// Run executes one import pass
func (j *ImportJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	summary, err := j.importer.Run(ctx)
	j.log.Info().
		Int("files", summary.Files).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("rows", summary.Rows).
		Msg("Price import finished")
	return err
}
