// Package upload turns an untrusted upload body into a trusted artifact on
// disk.
//
// Stages run in a fixed order and each failure stops the rest: extension
// allow-list, exclusive placement below the storage root, streamed write
// through the integrity hasher with the size cap, malware scan of the complete
// file, then MIME inference. Once the destination file exists, every failure
// removes it before the error is returned. The pipeline never writes
// metadata; persisting a StoredArtifact is the caller's job.
package upload

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"apphub/internal/apperr"
	"apphub/internal/config"
	"apphub/internal/model"
	"apphub/internal/scanner"
)

// Class selects the allow-list and subdirectory for an upload.
type Class string

const (
	ClassBinary Class = "files"
	ClassMedia  Class = "media"
)

// Descriptor is a request-scoped upload, consumed exactly once.
type Descriptor struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type route struct {
	dir   string
	allow []string
}

// Pipeline ingests uploads. It is safe for concurrent use; uploads share no
// mutable state.
type Pipeline struct {
	placer   *Placer
	scanner  scanner.Scanner
	maxBytes int64
	routes   map[Class]route
	metrics  *Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewPipeline wires the stages together from the upload and storage settings.
func NewPipeline(up config.UploadConfig, st config.StorageConfig, placer *Placer, sc scanner.Scanner, metrics *Metrics, logger *zap.Logger) *Pipeline {
	if sc == nil {
		sc = scanner.Disabled{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		placer:   placer,
		scanner:  sc,
		maxBytes: up.MaxBytes(),
		routes: map[Class]route{
			ClassBinary: {dir: st.FilesDir, allow: up.AllowedBinaryExts},
			ClassMedia:  {dir: st.MediaDir, allow: up.AllowedMediaExts},
		},
		metrics: metrics,
		logger:  logger.With(zap.String("component", "upload")),
		tracer:  otel.Tracer("apphub/upload"),
	}
}

// Discard removes an artifact this pipeline produced. Callers use it when the
// metadata insert that should reference the artifact fails.
func (p *Pipeline) Discard(a *model.StoredArtifact) error {
	if a == nil {
		return nil
	}
	return p.placer.Remove(a.StoredPath)
}

// Ingest runs one upload through every stage.
func (p *Pipeline) Ingest(ctx context.Context, class Class, d Descriptor) (*model.StoredArtifact, error) {
	ctx, span := p.tracer.Start(ctx, "upload.Ingest", trace.WithAttributes(attribute.String("upload.class", string(class))))
	defer span.End()

	art, outcome, err := p.ingest(ctx, class, d)
	var size int64
	if art != nil {
		size = art.SizeBytes
	}
	p.metrics.observe(class, outcome, size)
	span.SetAttributes(attribute.String("upload.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		fields := []zap.Field{
			zap.String("class", string(class)),
			zap.String("filename", d.Filename),
			zap.String("outcome", outcome),
			zap.Error(err),
		}
		switch apperr.KindOf(err) {
		case apperr.KindValidation:
			p.logger.Info("upload_rejected", fields...)
		case apperr.KindIntegrity:
			p.logger.Warn("upload_refused", fields...)
		default:
			p.logger.Error("upload_failed", fields...)
		}
		return nil, err
	}

	p.logger.Info("upload_stored",
		zap.String("class", string(class)),
		zap.String("stored_path", art.StoredPath),
		zap.Int64("size_bytes", art.SizeBytes),
		zap.String("sha256", art.ContentHash),
	)
	return art, nil
}

func (p *Pipeline) ingest(ctx context.Context, class Class, d Descriptor) (*model.StoredArtifact, string, error) {
	r, ok := p.routes[class]
	if !ok {
		return nil, OutcomeError, apperr.Internal(nil, "unknown upload class "+string(class))
	}

	name, err := SanitizeFilename(d.Filename)
	if err != nil {
		return nil, OutcomeRejected, err
	}
	if !Accepts(name, r.allow) {
		return nil, OutcomeRejected, apperr.Validation(apperr.CodeExtensionRejected, "file extension not allowed")
	}
	if d.Body == nil {
		return nil, OutcomeRejected, apperr.Validation(apperr.CodeInvalidInput, "file is required")
	}

	hasher := NewHasher(d.Body, p.maxBytes)
	placed, err := p.placer.Place(ctx, name, hasher, r.dir)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, OutcomeTooLarge, err
		}
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Internal(err, "store upload")
		}
		return nil, OutcomeError, err
	}

	res, err := p.scanner.Scan(ctx, placed.Path)
	if err != nil || res.Verdict != scanner.Clean {
		if rmErr := p.placer.Remove(placed.Path); rmErr != nil {
			p.logger.Error("upload_cleanup_failed", zap.String("stored_path", placed.Path), zap.Error(rmErr))
		}
		if res.Verdict == scanner.Infected {
			return nil, OutcomeInfected, apperr.Integrity(apperr.CodeMalwareDetected, "malware detected", nil)
		}
		return nil, OutcomeScannerUnavailable, apperr.Integrity(apperr.CodeScannerUnavailable, "malware scanner unavailable", err)
	}

	return &model.StoredArtifact{
		OriginalFilename: name,
		StoredPath:       placed.Path,
		SizeBytes:        hasher.Size(),
		ContentHash:      hasher.Sum(),
		MimeType:         MimeType(name),
	}, OutcomeStored, nil
}

// compoundTypes name archives whose outer extension is only the compression.
var compoundTypes = map[string]string{
	".tar.gz":  "application/x-tar",
	".tar.bz2": "application/x-tar",
	".tar.xz":  "application/x-tar",
	".tgz":     "application/x-tar",
}

// MimeType guesses a media type from the file name, falling back to
// application/octet-stream.
func MimeType(name string) string {
	lower := strings.ToLower(name)
	for suffix, t := range compoundTypes {
		if strings.HasSuffix(lower, suffix) {
			return t
		}
	}
	t := mime.TypeByExtension(filepath.Ext(lower))
	if t == "" {
		return "application/octet-stream"
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
