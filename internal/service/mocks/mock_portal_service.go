package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"apphub/internal/model"
	"apphub/internal/service"
)

type MockPortalService struct {
	mock.Mock
}

var _ service.PortalService = (*MockPortalService)(nil)

func (m *MockPortalService) Identify(ctx context.Context, email, displayName string) (*model.Principal, error) {
	args := m.Called(ctx, email, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Principal), args.Error(1)
}

func (m *MockPortalService) UploadFile(ctx context.Context, actor service.Actor, in service.FileUpload) (*model.FileRecord, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockPortalService) UploadMedia(ctx context.Context, actor service.Actor, in service.MediaUpload) (*model.MediaRecord, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaRecord), args.Error(1)
}

func (m *MockPortalService) DeleteFile(ctx context.Context, actor service.Actor, id int64) error {
	args := m.Called(ctx, actor, id)
	return args.Error(0)
}

func (m *MockPortalService) DeleteMedia(ctx context.Context, actor service.Actor, id int64) error {
	args := m.Called(ctx, actor, id)
	return args.Error(0)
}

func (m *MockPortalService) DeleteApp(ctx context.Context, actor service.Actor, id int64) error {
	args := m.Called(ctx, actor, id)
	return args.Error(0)
}

func (m *MockPortalService) SetUserRole(ctx context.Context, actor service.Actor, userID int64, role model.Role) error {
	args := m.Called(ctx, actor, userID, role)
	return args.Error(0)
}

func (m *MockPortalService) ResolveDownload(ctx context.Context, id int64) (*service.Retrieval, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Retrieval), args.Error(1)
}

func (m *MockPortalService) ResolveMedia(ctx context.Context, id int64) (*service.Retrieval, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Retrieval), args.Error(1)
}

func (m *MockPortalService) ListAudit(ctx context.Context, actor service.Actor, limit, offset int) (*service.AuditListResult, error) {
	args := m.Called(ctx, actor, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuditListResult), args.Error(1)
}

func (m *MockPortalService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
