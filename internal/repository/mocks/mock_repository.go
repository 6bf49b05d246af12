package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"apphub/internal/model"
	"apphub/internal/repository"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Upsert(ctx context.Context, email, displayName string, seenAt time.Time) (*model.Principal, error) {
	args := m.Called(ctx, email, displayName, seenAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Principal), args.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id int64) (*model.Principal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Principal), args.Error(1)
}

func (m *MockUserRepository) SetRole(ctx context.Context, id int64, role model.Role) error {
	args := m.Called(ctx, id, role)
	return args.Error(0)
}

type MockFileRepository struct {
	mock.Mock
}

func (m *MockFileRepository) Create(ctx context.Context, f *model.FileRecord) (*model.FileRecord, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileRepository) FindActive(ctx context.Context, id int64) (*model.FileRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileRepository) FindDownloadable(ctx context.Context, id int64) (*model.FileRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockFileRepository) IncrementDownloads(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockMediaRepository struct {
	mock.Mock
}

func (m *MockMediaRepository) Create(ctx context.Context, rec *model.MediaRecord) (*model.MediaRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaRecord), args.Error(1)
}

func (m *MockMediaRepository) FindByID(ctx context.Context, id int64) (*model.MediaRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaRecord), args.Error(1)
}

func (m *MockMediaRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockAppRepository struct {
	mock.Mock
}

func (m *MockAppRepository) FindActive(ctx context.Context, id int64) (*model.App, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.App), args.Error(1)
}

func (m *MockAppRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Insert(ctx context.Context, e *model.AuditEntry) (int64, error) {
	args := m.Called(ctx, e)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuditRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.AuditEntry], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.AuditEntry]), args.Error(1)
}

// MockStore runs WithinTx callbacks against the same mock repositories that
// Repos returns. Set TxErr to make the commit fail after fn succeeds.
type MockStore struct {
	Users *MockUserRepository
	Files *MockFileRepository
	Media *MockMediaRepository
	Apps  *MockAppRepository
	Audit *MockAuditRepository

	TxErr   error
	PingErr error
	Commits int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Users: &MockUserRepository{},
		Files: &MockFileRepository{},
		Media: &MockMediaRepository{},
		Apps:  &MockAppRepository{},
		Audit: &MockAuditRepository{},
	}
}

func (s *MockStore) Repos() repository.Repositories {
	return repository.Repositories{
		Users: s.Users,
		Files: s.Files,
		Media: s.Media,
		Apps:  s.Apps,
		Audit: s.Audit,
	}
}

func (s *MockStore) WithinTx(_ context.Context, fn func(r repository.Repositories) error) error {
	if err := fn(s.Repos()); err != nil {
		return err
	}
	if s.TxErr != nil {
		return s.TxErr
	}
	s.Commits++
	return nil
}

func (s *MockStore) Ping(context.Context) error { return s.PingErr }

// AssertExpectations checks every repository mock.
func (s *MockStore) AssertExpectations(t mock.TestingT) bool {
	return s.Users.AssertExpectations(t) &&
		s.Files.AssertExpectations(t) &&
		s.Media.AssertExpectations(t) &&
		s.Apps.AssertExpectations(t) &&
		s.Audit.AssertExpectations(t)
}

var _ repository.Store = (*MockStore)(nil)
