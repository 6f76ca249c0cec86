package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// In-memory ports backing the handler tests.

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*biz.UploadSession
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*biz.UploadSession)}
}

func (r *memSessionRepo) Create(_ context.Context, s *biz.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Get(_ context.Context, id string) (*biz.UploadSession, error) {
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

func (r *memSessionRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*biz.UploadSession, error) {
	return nil, nil
}

type memFileRepo struct {
	mu sync.Mutex
	m  map[string]*biz.FileRecord
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{m: make(map[string]*biz.FileRecord)}
}

func (r *memFileRepo) Create(_ context.Context, record *biz.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *record
	r.m[record.ID] = &cp
	return nil
}

func (r *memFileRepo) GetByShareToken(_ context.Context, token string) (*biz.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.m {
		if rec.ShareToken == token && rec.Status == biz.StatusActive {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, apperrors.New(apperrors.ErrFileNotFound)
}

func (r *memFileRepo) GetByID(_ context.Context, id string) (*biz.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.m[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrFileNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (r *memFileRepo) ListByOwner(_ context.Context, ownerID string) ([]*biz.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*biz.FileRecord
	for _, rec := range r.m {
		if rec.OwnerID == ownerID && rec.Status == biz.StatusActive {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memFileRepo) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	// The durable repo aborts on a dead context; the double does too so
	// handler tests see the same failure mode.
	if err := ctx.Err(); err != nil {
		return false, err
	}
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
	if rec, ok := r.m[id]; ok {
		rec.DownloadCount++
	}
	return nil
}

func (r *memFileRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*biz.FileRecord, error) {
	return nil, nil
}

func (r *memFileRepo) downloadCount(id string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.m[id]; ok {
		return rec.DownloadCount
	}
	return 0
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
	events []*biz.AccessEvent
}

func (l *memAccessLog) Append(_ context.Context, e *biz.AccessEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *e
	l.events = append(l.events, &cp)
	return nil
}

type staticLimits struct {
	limits biz.TransferLimits
}

func (s staticLimits) TransferLimits(context.Context) (biz.TransferLimits, error) {
	return s.limits, nil
}

// testApp wires the HTTP handlers against in-memory ports and disk-backed
// stores in temp dirs.
type testApp struct {
	router   *gin.Engine
	sessions *memSessionRepo
	files    *memFileRepo
	access   *memAccessLog
	blobs    *storage.LocalStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	chunks, err := storage.NewChunkStore(t.TempDir())
	require.NoError(t, err)
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	sessions := newMemSessionRepo()
	files := newMemFileRepo()
	access := &memAccessLog{}
	limits := staticLimits{}

	sessionUC := biz.NewSessionUseCase(sessions, files, chunks, blobs, limits,
		biz.SessionConfig{ChunkSize: 4, SessionTTL: time.Hour}, nil)
	fileUC := biz.NewFileUseCase(files, access, blobs, nil)

	uploadSvc := NewUploadService(sessionUC, "http://test.local", nil)
	downloadSvc := NewDownloadService(fileUC, blobs, limits, nil)
	fileSvc := NewFileService(fileUC, nil)

	router := gin.New()
	// Stand-in for the JWT middleware: identity comes from test headers.
	router.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set("user_id", user)
		}
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set("role", role)
		}
		c.Next()
	})
	api := router.Group("/api/v1")
	api.POST("/files", uploadSvc.Upload)
	api.POST("/files/uploads", uploadSvc.InitUpload)
	api.PUT("/files/uploads/:id/chunks/:index", uploadSvc.UploadChunk)
	api.POST("/files/uploads/:id/merge", uploadSvc.Merge)
	api.GET("/files/share/:token", downloadSvc.Preview)
	api.GET("/download/:token", downloadSvc.Download)
	api.GET("/files/mine", fileSvc.ListMine)
	api.DELETE("/files/:id", fileSvc.Delete)

	return &testApp{
		router:   router,
		sessions: sessions,
		files:    files,
		access:   access,
		blobs:    blobs,
	}
}

// seedFile plants an active record plus its blob
func (a *testApp) seedFile(t *testing.T, record *biz.FileRecord, content string) *biz.FileRecord {
	t.Helper()
	if record.Status == "" {
		record.Status = biz.StatusActive
	}
	if record.BlobKey == "" {
		record.BlobKey = "files/" + record.ShareToken + "/blob.bin"
	}
	record.FileSize = int64(len(content))
	_, err := a.blobs.Put(context.Background(), record.BlobKey, strings.NewReader(content), record.FileSize, record.MimeType)
	require.NoError(t, err)
	require.NoError(t, a.files.Create(context.Background(), record))
	return record
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(h)
}
