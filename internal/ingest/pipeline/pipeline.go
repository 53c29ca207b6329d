// Package pipeline orchestrates one export file's path from raw bytes to
// persisted canonical records.
package pipeline

import (
	"bytes"
	"context"
	"crypto/rand"
	"strings"

	"github.com/PresidentofMexico/openai-usage-metrics/internal/clock"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/config"
	identitydomain "github.com/PresidentofMexico/openai-usage-metrics/internal/identity/domain"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/format"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/normalize"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/observability/metrics"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/golang/snappy"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProcessResult is the outcome of one file run. Exactly one of Preview or
// Ingest is set, depending on whether the caller confirmed the write.
type ProcessResult struct {
	FileName       string                      `json:"file_name"`
	Classification format.Classification       `json:"classification"`
	Records        int                         `json:"records"`
	Preview        *usagedomain.PreviewResult  `json:"preview,omitempty"`
	Ingest         *usagedomain.IngestResult   `json:"ingest,omitempty"`
	Unidentified   int                         `json:"unidentified"`
}

type PipelineParam struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Clock      clock.Clock
	Detector   *format.Detector
	Normalizer *normalize.Normalizer
	Identity   identitydomain.Service
	Usage      usagedomain.Service
	Archive    ArchiveRepository
	Metrics    *metrics.Metrics `optional:"true"`
}

type Pipeline struct {
	log        *zap.Logger
	cfg        config.Config
	clock      clock.Clock
	detector   *format.Detector
	normalizer *normalize.Normalizer
	identity   identitydomain.Service
	usage      usagedomain.Service
	archive    ArchiveRepository
	metrics    *metrics.Metrics
}

func New(p PipelineParam) *Pipeline {
	return &Pipeline{
		log:        p.Log.Named("ingest.pipeline"),
		cfg:        p.Cfg,
		clock:      p.Clock,
		detector:   p.Detector,
		normalizer: p.Normalizer,
		identity:   p.Identity,
		usage:      p.Usage,
		archive:    p.Archive,
		metrics:    p.Metrics,
	}
}

// Detect classifies raw bytes without normalizing or writing anything.
func (p *Pipeline) Detect(ctx context.Context, content []byte) (format.Classification, error) {
	table, err := format.ParseTable(bytes.NewReader(content))
	if err != nil {
		return format.Classification{}, err
	}
	cls, err := p.detector.Detect(table)
	if err != nil {
		p.metrics.RecordUnrecognizedFormat(ctx)
		return format.Classification{}, err
	}
	return cls, nil
}

// ProcessFile runs the full ingestion path for one file. With confirm
// false it stops at a supersession preview; with confirm true it commits
// the batch and archives the original bytes.
func (p *Pipeline) ProcessFile(ctx context.Context, fileName string, content []byte, confirm bool) (ProcessResult, error) {
	table, err := format.ParseTable(bytes.NewReader(content))
	if err != nil {
		return ProcessResult{}, err
	}

	cls, err := p.detector.Detect(table)
	if err != nil {
		p.metrics.RecordUnrecognizedFormat(ctx)
		p.log.Warn("unrecognized export format",
			zap.String("file", fileName),
			zap.Strings("header", table.Header),
		)
		return ProcessResult{}, err
	}

	records, err := p.normalizer.Normalize(table, cls, fileName)
	if err != nil {
		return ProcessResult{}, err
	}

	unidentified := p.resolveDepartments(records)

	result := ProcessResult{
		FileName:       fileName,
		Classification: cls,
		Records:        len(records),
		Unidentified:   unidentified,
	}

	if !confirm {
		preview, err := p.usage.Preview(ctx, records, cls.Vendor)
		if err != nil {
			return ProcessResult{}, err
		}
		result.Preview = &preview
		return result, nil
	}

	ingest, err := p.usage.Ingest(ctx, records, cls.Vendor)
	if err != nil {
		return ProcessResult{}, err
	}
	result.Ingest = &ingest

	p.metrics.RecordFileIngested(ctx, cls.Vendor)
	if p.cfg.ArchiveSourceFiles {
		p.archiveFile(ctx, fileName, cls, ingest.BatchID, content)
	}
	return result, nil
}

// resolveDepartments applies the roster-wins rule to every record and
// returns how many subjects had no roster match. Records left with a blank
// department after resolution fall back to Unknown.
func (p *Pipeline) resolveDepartments(records []usagedomain.CanonicalUsageRecord) int {
	unmatched := map[string]struct{}{}
	for i := range records {
		r := &records[i]
		email := ""
		if strings.Contains(r.UserKey, "@") {
			email = r.UserKey
		}
		outcome := p.identity.Resolve(email, r.DisplayName)
		if !outcome.Matched {
			unmatched[r.UserKey] = struct{}{}
		}
		r.Department = p.identity.ResolveDepartment(outcome, r.Department)
		if strings.TrimSpace(r.Department) == "" {
			r.Department = identitydomain.DeptUnknown
		}
	}
	return len(unmatched)
}

func (p *Pipeline) archiveFile(ctx context.Context, fileName string, cls format.Classification, batchID string, content []byte) {
	now := p.clock.Now().UTC()
	file := &SourceFile{
		ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		FileName:   fileName,
		Vendor:     cls.Vendor,
		Sublayout:  cls.Sublayout,
		BatchID:    batchID,
		SizeBytes:  int64(len(content)),
		Compressed: snappy.Encode(nil, content),
		ArchivedAt: now,
	}
	if err := p.archive.Save(ctx, file); err != nil {
		// Archival is best effort; the canonical records are already
		// committed.
		p.log.Warn("source file archival failed",
			zap.String("file", fileName),
			zap.Error(err),
		)
	}
}
