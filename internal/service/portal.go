package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"apphub/internal/apperr"
	"apphub/internal/audit"
	"apphub/internal/logging"
	"apphub/internal/model"
	"apphub/internal/pathguard"
	"apphub/internal/rbac"
	"apphub/internal/repository"
	"apphub/internal/storage"
	"apphub/internal/upload"
)

// Entity types written to the audit log.
const (
	EntityFile  = "file"
	EntityMedia = "media"
	EntityApp   = "app"
	EntityUser  = "user"
)

// Actor is the principal performing a request, plus where it came from.
type Actor struct {
	Principal model.Principal
	SourceIP  string
}

// FileUpload is a release binary submitted by an editor.
type FileUpload struct {
	ReleaseID int64
	Platform  string
	Arch      string
	Upload    upload.Descriptor
}

// MediaUpload is an app image submitted by an editor.
type MediaUpload struct {
	AppID     int64
	Type      string
	Caption   string
	SortOrder int
	Upload    upload.Descriptor
}

// Retrieval tells the transport how to hand a stored file to the fronting
// web server. Redirect is the internal location; bytes never pass through
// this process.
type Retrieval struct {
	Filename    string
	ContentType string
	Redirect    string
	Attachment  bool
}

// AuditListResult is the service-level DTO for paginated audit entries.
type AuditListResult struct {
	Items []model.AuditEntry `json:"data"`
	Total int                `json:"total"`
}

// Ingester is the upload pipeline as seen by the service.
type Ingester interface {
	Ingest(ctx context.Context, class upload.Class, d upload.Descriptor) (*model.StoredArtifact, error)
	Discard(a *model.StoredArtifact) error
}

// PortalService holds every privileged mutation and retrieval of the core.
// Each mutation is RBAC gated and written together with its audit entry in a
// single transaction.
type PortalService interface {
	// Identify upserts the principal behind a pre-authenticated request.
	Identify(ctx context.Context, email, displayName string) (*model.Principal, error)

	UploadFile(ctx context.Context, actor Actor, in FileUpload) (*model.FileRecord, error)
	UploadMedia(ctx context.Context, actor Actor, in MediaUpload) (*model.MediaRecord, error)

	DeleteFile(ctx context.Context, actor Actor, id int64) error
	DeleteMedia(ctx context.Context, actor Actor, id int64) error
	DeleteApp(ctx context.Context, actor Actor, id int64) error
	SetUserRole(ctx context.Context, actor Actor, userID int64, role model.Role) error

	ResolveDownload(ctx context.Context, id int64) (*Retrieval, error)
	ResolveMedia(ctx context.Context, id int64) (*Retrieval, error)

	ListAudit(ctx context.Context, actor Actor, limit, offset int) (*AuditListResult, error)

	Ping(ctx context.Context) error
}

// Options configures NewPortalService. Mirror may be nil.
type Options struct {
	Store          repository.Store
	Pipeline       Ingester
	Guard          *pathguard.Guard
	Recorder       *audit.Recorder
	Mirror         storage.Storage
	InternalPrefix string
	Logger         *zap.Logger
}

type portalService struct {
	store    repository.Store
	pipeline Ingester
	guard    *pathguard.Guard
	recorder *audit.Recorder
	mirror   storage.Storage
	prefix   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewPortalService constructs a PortalService.
func NewPortalService(o Options) PortalService {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := o.Recorder
	if rec == nil {
		rec = audit.NewRecorder()
	}
	return &portalService{
		store:    o.Store,
		pipeline: o.Pipeline,
		guard:    o.Guard,
		recorder: rec,
		mirror:   o.Mirror,
		prefix:   o.InternalPrefix,
		logger:   logger.With(zap.String("component", "portal")),
		now:      time.Now,
	}
}

func (s *portalService) Identify(ctx context.Context, email, displayName string) (*model.Principal, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, apperr.Unauthenticated("missing identity")
	}
	return s.store.Repos().Users.Upsert(ctx, email, displayName, s.now().UTC())
}

// authorize applies the role check and logs denials as security events.
func (s *portalService) authorize(actor Actor, min model.Role, op string) error {
	if err := rbac.Require(actor.Principal, min); err != nil {
		s.logger.Warn("access_denied",
			logging.Security(),
			zap.String("operation", op),
			zap.String("actor", actor.Principal.Email),
			zap.String("role", actor.Principal.Role.String()),
			zap.String("required_role", min.String()),
			zap.String("ip", actor.SourceIP),
		)
		return err
	}
	return nil
}

func (s *portalService) record(ctx context.Context, r repository.Repositories, actor Actor, action model.AuditAction, entity string, id int64, before, after any) error {
	_, err := s.recorder.Record(ctx, r.Audit, audit.Mutation{
		Actor:      actor.Principal.Email,
		Action:     action,
		EntityType: entity,
		EntityID:   audit.ID(id),
		Before:     before,
		After:      after,
		SourceIP:   actor.SourceIP,
	})
	return err
}

// discard removes an artifact whose metadata never committed.
func (s *portalService) discard(art *model.StoredArtifact) {
	if err := s.pipeline.Discard(art); err != nil {
		s.logger.Error("artifact_cleanup_failed", zap.String("stored_path", art.StoredPath), zap.Error(err))
	}
}

// replicate copies a committed artifact to the mirror. Failures are logged only.
func (s *portalService) replicate(ctx context.Context, class upload.Class, art *model.StoredArtifact) {
	if s.mirror == nil {
		return
	}
	key := storage.ObjectKey(string(class), art.StoredPath)
	if _, err := storage.CopyFile(ctx, s.mirror, key, art.StoredPath, art.MimeType, map[string]string{"sha256": art.ContentHash}); err != nil {
		s.logger.Warn("mirror_put_failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *portalService) UploadFile(ctx context.Context, actor Actor, in FileUpload) (*model.FileRecord, error) {
	if err := s.authorize(actor, model.RoleEditor, "upload_file"); err != nil {
		return nil, err
	}
	if in.ReleaseID <= 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "release_id is required")
	}

	art, err := s.pipeline.Ingest(ctx, upload.ClassBinary, in.Upload)
	if err != nil {
		return nil, err
	}

	var created *model.FileRecord
	err = s.store.WithinTx(ctx, func(r repository.Repositories) error {
		rec, err := r.Files.Create(ctx, &model.FileRecord{
			ReleaseID:  in.ReleaseID,
			Platform:   in.Platform,
			Arch:       in.Arch,
			Filename:   art.OriginalFilename,
			StoredPath: art.StoredPath,
			SizeBytes:  art.SizeBytes,
			SHA256:     art.ContentHash,
			MimeType:   art.MimeType,
			CreatedAt:  s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := s.record(ctx, r, actor, model.AuditCreate, EntityFile, rec.ID, nil, fileSnapshot(rec)); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		s.discard(art)
		return nil, err
	}

	s.replicate(ctx, upload.ClassBinary, art)
	return created, nil
}

func (s *portalService) UploadMedia(ctx context.Context, actor Actor, in MediaUpload) (*model.MediaRecord, error) {
	if err := s.authorize(actor, model.RoleEditor, "upload_media"); err != nil {
		return nil, err
	}
	if in.AppID <= 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "app_id is required")
	}
	if in.Type == "" {
		in.Type = "screenshot"
	}

	art, err := s.pipeline.Ingest(ctx, upload.ClassMedia, in.Upload)
	if err != nil {
		return nil, err
	}

	var created *model.MediaRecord
	err = s.store.WithinTx(ctx, func(r repository.Repositories) error {
		rec, err := r.Media.Create(ctx, &model.MediaRecord{
			AppID:      in.AppID,
			Type:       in.Type,
			StoredPath: art.StoredPath,
			Caption:    in.Caption,
			SortOrder:  in.SortOrder,
			CreatedAt:  s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := s.record(ctx, r, actor, model.AuditCreate, EntityMedia, rec.ID, nil, mediaSnapshot(rec)); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		s.discard(art)
		return nil, err
	}

	s.replicate(ctx, upload.ClassMedia, art)
	return created, nil
}

func (s *portalService) DeleteFile(ctx context.Context, actor Actor, id int64) error {
	if err := s.authorize(actor, model.RoleAdmin, "delete_file"); err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(r repository.Repositories) error {
		f, err := r.Files.FindActive(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Files.SoftDelete(ctx, id, s.now().UTC()); err != nil {
			return err
		}
		return s.record(ctx, r, actor, model.AuditDelete, EntityFile, id, fileSnapshot(f), nil)
	})
}

// DeleteMedia removes the row and then, best effort, the stored file. The
// file is only touched when its path is contained in the storage root.
func (s *portalService) DeleteMedia(ctx context.Context, actor Actor, id int64) error {
	if err := s.authorize(actor, model.RoleAdmin, "delete_media"); err != nil {
		return err
	}
	var deleted *model.MediaRecord
	err := s.store.WithinTx(ctx, func(r repository.Repositories) error {
		m, err := r.Media.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Media.Delete(ctx, id); err != nil {
			return err
		}
		deleted = m
		return s.record(ctx, r, actor, model.AuditDelete, EntityMedia, id, mediaSnapshot(m), nil)
	})
	if err != nil {
		return err
	}

	if _, err := s.guard.Resolve(deleted.StoredPath); err != nil {
		if apperr.KindOf(err) == apperr.KindSecurity {
			s.logger.Warn("media_cleanup_refused", logging.Security(), zap.Int64("media_id", id), zap.String("stored_path", deleted.StoredPath))
		}
		return nil
	}
	s.discard(&model.StoredArtifact{StoredPath: deleted.StoredPath})
	if s.mirror != nil {
		key := storage.ObjectKey(string(upload.ClassMedia), deleted.StoredPath)
		if err := s.mirror.Delete(ctx, key); err != nil {
			s.logger.Warn("mirror_delete_failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

func (s *portalService) DeleteApp(ctx context.Context, actor Actor, id int64) error {
	if err := s.authorize(actor, model.RoleAdmin, "delete_app"); err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(r repository.Repositories) error {
		a, err := r.Apps.FindActive(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Apps.SoftDelete(ctx, id, s.now().UTC()); err != nil {
			return err
		}
		return s.record(ctx, r, actor, model.AuditDelete, EntityApp, id, appSnapshot(a), nil)
	})
}

func (s *portalService) SetUserRole(ctx context.Context, actor Actor, userID int64, role model.Role) error {
	if err := s.authorize(actor, model.RoleAdmin, "set_user_role"); err != nil {
		return err
	}
	if !role.Valid() {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid role")
	}
	return s.store.WithinTx(ctx, func(r repository.Repositories) error {
		u, err := r.Users.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if err := r.Users.SetRole(ctx, userID, role); err != nil {
			return err
		}
		return s.record(ctx, r, actor, model.AuditUpdate, EntityUser, userID,
			map[string]string{"role": u.Role.String()},
			map[string]string{"role": role.String()},
		)
	})
}

// serve runs a stored path through containment. Rejections are logged as
// security events and the path is never exposed.
func (s *portalService) serve(storedPath, entity string, id int64) (string, error) {
	resolved, err := s.guard.Resolve(storedPath)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindSecurity {
			s.logger.Warn("path_rejected",
				logging.Security(),
				zap.String("entity_type", entity),
				zap.Int64("entity_id", id),
				zap.String("stored_path", storedPath),
			)
		}
		return "", err
	}
	return pathguard.InternalRedirect(s.prefix, resolved), nil
}

func (s *portalService) ResolveDownload(ctx context.Context, id int64) (*Retrieval, error) {
	repos := s.store.Repos()
	f, err := repos.Files.FindDownloadable(ctx, id)
	if err != nil {
		return nil, err
	}
	redirect, err := s.serve(f.StoredPath, EntityFile, id)
	if err != nil {
		return nil, err
	}
	if err := repos.Files.IncrementDownloads(ctx, id); err != nil {
		return nil, err
	}
	return &Retrieval{
		Filename:    f.Filename,
		ContentType: f.MimeType,
		Redirect:    redirect,
		Attachment:  true,
	}, nil
}

func (s *portalService) ResolveMedia(ctx context.Context, id int64) (*Retrieval, error) {
	m, err := s.store.Repos().Media.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	redirect, err := s.serve(m.StoredPath, EntityMedia, id)
	if err != nil {
		return nil, err
	}
	return &Retrieval{
		ContentType: upload.MimeType(m.StoredPath),
		Redirect:    redirect,
	}, nil
}

func (s *portalService) ListAudit(ctx context.Context, actor Actor, limit, offset int) (*AuditListResult, error) {
	if err := s.authorize(actor, model.RoleAdmin, "list_audit"); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.store.Repos().Audit.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &AuditListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *portalService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return apperr.Persistence(fmt.Errorf("ping: %w", err), "database unavailable")
	}
	return nil
}

func fileSnapshot(f *model.FileRecord) map[string]any {
	return map[string]any{
		"id":         f.ID,
		"release_id": f.ReleaseID,
		"platform":   f.Platform,
		"arch":       f.Arch,
		"filename":   f.Filename,
		"size_bytes": f.SizeBytes,
		"sha256":     f.SHA256,
	}
}

func mediaSnapshot(m *model.MediaRecord) map[string]any {
	return map[string]any{
		"id":         m.ID,
		"app_id":     m.AppID,
		"type":       m.Type,
		"caption":    m.Caption,
		"sort_order": m.SortOrder,
	}
}

func appSnapshot(a *model.App) map[string]any {
	return map[string]any{
		"id":   a.ID,
		"slug": a.Slug,
		"name": a.Name,
	}
}
