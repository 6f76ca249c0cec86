package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// ChunkStore holds per-session chunk files before merge. Each session owns a
// directory under root; chunk files are named by their zero-based index.
type ChunkStore struct {
	root string
}

// NewChunkStore creates a chunk store rooted at dir
func NewChunkStore(dir string) (*ChunkStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chunk root: %w", err)
	}
	return &ChunkStore{root: dir}, nil
}

func (s *ChunkStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// CreateSession allocates the chunk directory for a new upload session
func (s *ChunkStore) CreateSession(sessionID string) error {
	if err := os.MkdirAll(s.sessionDir(sessionID), 0755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	return nil
}

// Write persists one chunk, replacing any previous content at the same
// index. The write goes to a temp file first and is renamed into place, so a
// retried chunk upload either fully overwrites or leaves the old chunk
// intact.
func (s *ChunkStore) Write(sessionID string, index int, r io.Reader) (int64, error) {
	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".chunk-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create chunk temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return n, fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("failed to close chunk file: %w", err)
	}

	final := filepath.Join(dir, strconv.Itoa(index))
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("failed to finalize chunk: %w", err)
	}

	return n, nil
}

// Indices returns the sorted set of chunk indices present for a session.
// Non-numeric entries (in-progress temp files) are skipped.
func (s *ChunkStore) Indices(sessionID string) ([]int, error) {
	entries, err := os.ReadDir(s.sessionDir(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session dir: %w", err)
	}

	var indices []int
	for _, e := range entries {
		idx, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

// Size sums the stored chunk sizes for a session
func (s *ChunkStore) Size(sessionID string) (int64, error) {
	indices, err := s.Indices(sessionID)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, idx := range indices {
		info, err := os.Stat(filepath.Join(s.sessionDir(sessionID), strconv.Itoa(idx)))
		if err != nil {
			return 0, fmt.Errorf("failed to stat chunk %d: %w", idx, err)
		}
		total += info.Size()
	}
	return total, nil
}

// NewReader returns a reader concatenating chunks 0..totalChunks-1 in index
// order. Chunk files are opened lazily one at a time, so merging never
// buffers more than one open file regardless of total size.
func (s *ChunkStore) NewReader(sessionID string, totalChunks int) io.ReadCloser {
	return &chunkReader{
		dir:         s.sessionDir(sessionID),
		totalChunks: totalChunks,
	}
}

// Remove deletes a session's chunk directory and everything in it
func (s *ChunkStore) Remove(sessionID string) error {
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to remove session dir: %w", err)
	}
	return nil
}

// Sessions lists session IDs that still have chunk directories, for the
// stale-session sweep.
func (s *ChunkStore) Sessions() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk root: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// chunkReader streams chunk files sequentially in index order
type chunkReader struct {
	dir         string
	totalChunks int
	next        int
	cur         *os.File
	closed      bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, os.ErrClosed
	}

	for {
		if r.cur == nil {
			if r.next >= r.totalChunks {
				return 0, io.EOF
			}
			f, err := os.Open(filepath.Join(r.dir, strconv.Itoa(r.next)))
			if err != nil {
				return 0, fmt.Errorf("failed to open chunk %d: %w", r.next, err)
			}
			r.cur = f
			r.next++
		}

		n, err := r.cur.Read(p)
		if err == io.EOF {
			r.cur.Close()
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *chunkReader) Close() error {
	r.closed = true
	if r.cur != nil {
		err := r.cur.Close()
		r.cur = nil
		return err
	}
	return nil
}
