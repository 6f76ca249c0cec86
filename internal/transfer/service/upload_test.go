package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func postJSON(app *testApp, target string, payload interface{}, headers map[string]string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func putChunk(app *testApp, sessionID string, index int, data string) *httptest.ResponseRecorder {
	target := fmt.Sprintf("/api/v1/files/uploads/%s/chunks/%d", sessionID, index)
	req := httptest.NewRequest(http.MethodPut, target, strings.NewReader(data))
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestChunkedUploadFlow(t *testing.T) {
	app := newTestApp(t)

	// Init.
	w := postJSON(app, "/api/v1/files/uploads", InitUploadRequest{
		Filename: "flow.txt",
		FileSize: 10,
		MimeType: "text/plain",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var initResp InitUploadResponse
	decodeData(t, w, &initResp)
	require.NotEmpty(t, initResp.SessionID)
	assert.Equal(t, int64(4), initResp.ChunkSize)
	assert.Equal(t, 3, initResp.TotalChunks)

	// Chunks, out of order.
	for _, c := range []struct {
		index int
		data  string
	}{{1, "5678"}, {0, "1234"}, {2, "90"}} {
		w := putChunk(app, initResp.SessionID, c.index, c.data)
		require.Equal(t, http.StatusOK, w.Code)

		var chunkResp ChunkResponse
		decodeData(t, w, &chunkResp)
		assert.Equal(t, c.index, chunkResp.Index)
		assert.Equal(t, int64(len(c.data)), chunkResp.Received)
	}

	// Merge.
	w = postJSON(app, "/api/v1/files/uploads/"+initResp.SessionID+"/merge", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var mergeResp MergeResponse
	decodeData(t, w, &mergeResp)
	require.NotNil(t, mergeResp.File)
	assert.Equal(t, "flow.txt", mergeResp.File.Filename)
	assert.Equal(t, int64(10), mergeResp.File.FileSize)
	assert.Equal(t, "http://test.local/share/"+mergeResp.File.ShareToken, mergeResp.ShareURL)

	// The merged file is downloadable end to end.
	dw := doRequest(app, http.MethodGet, "/api/v1/download/"+mergeResp.File.ShareToken, nil)
	require.Equal(t, http.StatusOK, dw.Code)
	assert.Equal(t, "1234567890", dw.Body.String())
}

func TestMergeWithMissingChunk(t *testing.T) {
	app := newTestApp(t)

	w := postJSON(app, "/api/v1/files/uploads", InitUploadRequest{
		Filename: "gap.bin",
		FileSize: 12,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var initResp InitUploadResponse
	decodeData(t, w, &initResp)

	require.Equal(t, http.StatusOK, putChunk(app, initResp.SessionID, 0, "aaaa").Code)
	require.Equal(t, http.StatusOK, putChunk(app, initResp.SessionID, 2, "cccc").Code)

	w = postJSON(app, "/api/v1/files/uploads/"+initResp.SessionID+"/merge", nil, nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestUploadChunkValidation(t *testing.T) {
	app := newTestApp(t)

	w := postJSON(app, "/api/v1/files/uploads", InitUploadRequest{
		Filename: "v.bin",
		FileSize: 8,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var initResp InitUploadResponse
	decodeData(t, w, &initResp)

	// Non-numeric index.
	req := httptest.NewRequest(http.MethodPut,
		"/api/v1/files/uploads/"+initResp.SessionID+"/chunks/abc", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Out-of-range index.
	assert.Equal(t, http.StatusBadRequest, putChunk(app, initResp.SessionID, 9, "x").Code)

	// Unknown session.
	assert.Equal(t, http.StatusNotFound, putChunk(app, "no-such-session", 0, "x").Code)
}

func TestSingleShotUpload(t *testing.T) {
	app := newTestApp(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "single.txt")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "hello single shot")
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("burn_after_read", "true"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", "alice")
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var mergeResp MergeResponse
	decodeData(t, w, &mergeResp)
	require.NotNil(t, mergeResp.File)
	assert.Equal(t, "single.txt", mergeResp.File.Filename)
	assert.Equal(t, int64(len("hello single shot")), mergeResp.File.FileSize)
	assert.True(t, mergeResp.File.BurnAfterRead)

	// Ownership came from the authenticated identity.
	records, err := app.files.ListByOwner(req.Context(), "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestListMineAndDelete(t *testing.T) {
	app := newTestApp(t)
	app.seedFile(t, &biz.FileRecord{ID: "f1", ShareToken: "t1", Filename: "mine.txt", OwnerID: "alice"}, "abc")
	app.seedFile(t, &biz.FileRecord{ID: "f2", ShareToken: "t2", Filename: "theirs.txt", OwnerID: "bob"}, "def")

	// Anonymous callers are rejected.
	w := doRequest(app, http.MethodGet, "/api/v1/files/mine", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(app, http.MethodGet, "/api/v1/files/mine", map[string]string{"X-Test-User": "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Files []*biz.FileView `json:"files"`
	}
	decodeData(t, w, &listResp)
	require.Len(t, listResp.Files, 1)
	assert.Equal(t, "mine.txt", listResp.Files[0].Filename)

	// Deleting someone else's file is forbidden.
	w = doRequest(app, http.MethodDelete, "/api/v1/files/f2", map[string]string{"X-Test-User": "alice"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Deleting your own works.
	w = doRequest(app, http.MethodDelete, "/api/v1/files/f1", map[string]string{"X-Test-User": "alice"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, biz.StatusDeleted, app.files.status("f1"))

	// Admins can delete anything.
	w = doRequest(app, http.MethodDelete, "/api/v1/files/f2",
		map[string]string{"X-Test-User": "root", "X-Test-Role": "admin"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, biz.StatusDeleted, app.files.status("f2"))
}
