package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/storage"
)

func doRequest(app *testApp, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func TestDownloadFullContent(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{
		ID:         "f1",
		ShareToken: "tok1",
		Filename:   "digits.txt",
		MimeType:   "text/plain",
	}, "0123456789")

	w := doRequest(app, http.MethodGet, "/api/v1/download/tok1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0123456789", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "10", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "digits.txt")

	assert.Equal(t, int64(1), app.files.downloadCount("f1"))
}

func TestDownloadRangeRequest(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{ID: "f1", ShareToken: "tok1", Filename: "d.bin"}, "0123456789")

	w := doRequest(app, http.MethodGet, "/api/v1/download/tok1", map[string]string{"Range": "bytes=2-5"})

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "2345", w.Body.String())
	assert.Equal(t, "bytes 2-5/10", w.Header().Get("Content-Range"))
	assert.Equal(t, "4", w.Header().Get("Content-Length"))

	// A resumed range does not count as a new download.
	assert.Equal(t, int64(0), app.files.downloadCount("f1"))
}

func TestDownloadRangeFromZeroCounts(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{ID: "f1", ShareToken: "tok1", Filename: "d.bin"}, "0123456789")

	w := doRequest(app, http.MethodGet, "/api/v1/download/tok1", map[string]string{"Range": "bytes=0-4"})

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "01234", w.Body.String())
	assert.Equal(t, int64(1), app.files.downloadCount("f1"))
}

func TestDownloadOpenEndedRange(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{ID: "f1", ShareToken: "tok1", Filename: "d.bin"}, "0123456789")

	w := doRequest(app, http.MethodGet, "/api/v1/download/tok1", map[string]string{"Range": "bytes=7-"})

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "789", w.Body.String())
	assert.Equal(t, "bytes 7-9/10", w.Header().Get("Content-Range"))
}

func TestDownloadUnsatisfiableRange(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{ID: "f1", ShareToken: "tok1", Filename: "d.bin"}, "0123456789")

	w := doRequest(app, http.MethodGet, "/api/v1/download/tok1", map[string]string{"Range": "bytes=50-60"})

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */10", w.Header().Get("Content-Range"))
	assert.Empty(t, w.Body.String())
	assert.Equal(t, int64(0), app.files.downloadCount("f1"))
}

func TestDownloadMalformedRangeServesFullContent(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{ID: "f1", ShareToken: "tok1", Filename: "d.bin"}, "0123456789")

	w := doRequest(app, http.MethodGet, "/api/v1/download/tok1", map[string]string{"Range": "items=2-5"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0123456789", w.Body.String())
}

func TestDownloadPasswordGate(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{
		ID:           "f1",
		ShareToken:   "tok1",
		Filename:     "secret.txt",
		PasswordHash: hashOf(t, "pw"),
	}, "top secret")

	w := doRequest(app, http.MethodGet, "/api/v1/download/tok1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(app, http.MethodGet, "/api/v1/download/tok1?password=wrong", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(app, http.MethodGet, "/api/v1/download/tok1?password=pw", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "top secret", w.Body.String())

	// Header form works too.
	w = doRequest(app, http.MethodGet, "/api/v1/download/tok1", map[string]string{"X-File-Password": "pw"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDownloadUnknownToken(t *testing.T) {
	app := newTestApp(t)

	w := doRequest(app, http.MethodGet, "/api/v1/download/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBurnAfterReadConsumedOnFullDelivery(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{
		ID:            "f1",
		ShareToken:    "tok1",
		Filename:      "once.txt",
		BurnAfterRead: true,
	}, "read me once")

	w := doRequest(app, http.MethodGet, "/api/v1/download/tok1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "read me once", w.Body.String())

	assert.Equal(t, biz.StatusDeleted, app.files.status("f1"))

	w = doRequest(app, http.MethodGet, "/api/v1/download/tok1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// disconnectingStore hands out blob readers that drop the request context
// the moment the last byte is read, like a client closing the connection
// right as the body completes.
type disconnectingStore struct {
	storage.BlobStore
	cancel context.CancelFunc
}

func (s *disconnectingStore) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	rc, err := s.BlobStore.GetRange(ctx, key, start, end)
	if err != nil {
		return nil, err
	}
	return &disconnectingReader{rc: rc, cancel: s.cancel}, nil
}

type disconnectingReader struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (r *disconnectingReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if err == io.EOF {
		r.cancel()
	}
	return n, err
}

func (r *disconnectingReader) Close() error { return r.rc.Close() }

func TestBurnAfterReadFiresDespiteDisconnectAtLastByte(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{
		ID:            "f1",
		ShareToken:    "tok1",
		Filename:      "once.txt",
		BurnAfterRead: true,
	}, "read me once")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileUC := biz.NewFileUseCase(app.files, app.access, app.blobs, nil)
	svc := NewDownloadService(fileUC, &disconnectingStore{BlobStore: app.blobs, cancel: cancel}, staticLimits{}, nil)
	router := gin.New()
	router.GET("/download/:token", svc.Download)

	req := httptest.NewRequest(http.MethodGet, "/download/tok1", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "read me once", w.Body.String())

	// The full body went out, so the burn lands even though the request
	// context died with the connection.
	assert.Equal(t, biz.StatusDeleted, app.files.status("f1"))

	w = doRequest(app, http.MethodGet, "/api/v1/download/tok1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBurnAfterReadSurvivesPartialRange(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{
		ID:            "f1",
		ShareToken:    "tok1",
		Filename:      "once.bin",
		BurnAfterRead: true,
	}, "0123456789")

	// A range stopping short of the final byte must not burn the file.
	w := doRequest(app, http.MethodGet, "/api/v1/download/tok1", map[string]string{"Range": "bytes=0-4"})
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, biz.StatusActive, app.files.status("f1"))

	// The range that delivers the final byte does.
	w = doRequest(app, http.MethodGet, "/api/v1/download/tok1", map[string]string{"Range": "bytes=5-9"})
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "56789", w.Body.String())
	assert.Equal(t, biz.StatusDeleted, app.files.status("f1"))
}

func TestPreviewOpenFile(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{ID: "f1", ShareToken: "tok1", Filename: "pic.png", MimeType: "image/png"}, "pngdata")

	w := doRequest(app, http.MethodGet, "/api/v1/files/share/tok1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data PreviewResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Data.RequiresPassword)
	require.NotNil(t, body.Data.File)
	assert.Equal(t, "pic.png", body.Data.File.Filename)
	assert.Equal(t, int64(7), body.Data.File.FileSize)
}

func TestPreviewPasswordPrompt(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{
		ID:           "f1",
		ShareToken:   "tok1",
		Filename:     "secret.txt",
		PasswordHash: hashOf(t, "pw"),
	}, "xx")

	// No password: success response that only signals the prompt.
	w := doRequest(app, http.MethodGet, "/api/v1/files/share/tok1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data PreviewResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.RequiresPassword)
	assert.Nil(t, body.Data.File)

	// Wrong password is an error.
	w = doRequest(app, http.MethodGet, "/api/v1/files/share/tok1?password=nope", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Correct password reveals the metadata.
	w = doRequest(app, http.MethodGet, "/api/v1/files/share/tok1?password=pw", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Data.File)
	assert.Equal(t, "secret.txt", body.Data.File.Filename)
}
