package biz

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
)

// In-memory repo doubles shared by the use-case tests.

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*UploadSession
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*UploadSession)}
}

func (r *memSessionRepo) Create(_ context.Context, s *UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Get(_ context.Context, id string) (*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrSessionNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}

func (r *memSessionRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*UploadSession
	for _, s := range r.m {
		if s.Expired(now) {
			cp := *s
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type memFileRepo struct {
	mu        sync.Mutex
	m         map[string]*FileRecord
	createErr error
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{m: make(map[string]*FileRecord)}
}

func (r *memFileRepo) Create(_ context.Context, record *FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *record
	r.m[record.ID] = &cp
	return nil
}

func (r *memFileRepo) GetByShareToken(_ context.Context, token string) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.m {
		if rec.ShareToken == token && rec.Status == StatusActive {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, apperrors.New(apperrors.ErrFileNotFound)
}

func (r *memFileRepo) GetByID(_ context.Context, id string) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.m[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrFileNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (r *memFileRepo) ListByOwner(_ context.Context, ownerID string) ([]*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*FileRecord
	for _, rec := range r.m {
		if rec.OwnerID == ownerID && rec.Status == StatusActive {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memFileRepo) TransitionStatus(_ context.Context, id, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.m[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	return true, nil
}

func (r *memFileRepo) IncrementDownloadCount(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.m[id]
	if !ok {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	rec.DownloadCount++
	return nil
}

func (r *memFileRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*FileRecord
	for _, rec := range r.m {
		if rec.Status == StatusActive && rec.ExpiresAt != nil && now.After(*rec.ExpiresAt) {
			cp := *rec
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memFileRepo) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.m[id]; ok {
		return rec.Status
	}
	return ""
}

type memAccessLog struct {
	mu     sync.Mutex
	events []*AccessEvent
}

func (l *memAccessLog) Append(_ context.Context, e *AccessEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *e
	l.events = append(l.events, &cp)
	return nil
}

func (l *memAccessLog) byType(accessType string) []*AccessEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*AccessEvent
	for _, e := range l.events {
		if e.AccessType == accessType {
			out = append(out, e)
		}
	}
	return out
}

type staticLimits struct {
	limits TransferLimits
}

func (s staticLimits) TransferLimits(context.Context) (TransferLimits, error) {
	return s.limits, nil
}
