package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gwicho38/lsh-sub006/codec"
	"github.com/gwicho38/lsh-sub006/fsutils"
)

// record is one stored document inside a collection. Data is kept as a
// json.RawMessage so the file's on-disk shape is stable regardless of the
// concrete Go type a caller later decodes it into.
type record struct {
	ID  string          `json:"id"`
	Seq int64           `json:"seq"`
	Doc json.RawMessage `json:"doc"`
}

// fileState is the single document persisted to the backing file. Every
// collection lives as its own named slice so the whole daemon's durable
// state fits in one file, matching the single-file-per-user layout of the
// teacher's chrono.FileStorage generalized from one collection to several.
type fileState struct {
	Collections map[Collection][]*record `json:"collections"`
	NextSeq     int64                    `json:"nextSeq"`
}

// FileStore is a file-based Backend. It persists all collections to a
// single file using the codec package; the serialization format (YAML,
// JSON, or XML) is determined from the file extension via
// fsutils.LookupContentType. Every operation reads the full file, mutates
// it in memory, and rewrites it via a temp-file-then-rename so a crash
// mid-write never corrupts the previous good state.
type FileStore struct {
	mu   sync.Mutex
	path string
	c    codec.Codec
}

// NewFileStore opens (or creates) the state file at path.
func NewFileStore(path string) (*FileStore, error) {
	contentType := fsutils.LookupContentType(path)

	c, err := codec.GetDefault(contentType)
	if err != nil {
		return nil, fmt.Errorf("storage: unsupported file type %q for %s: %w", contentType, filepath.Base(path), err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	fs := &FileStore{path: path, c: c}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.DebugF("FileStore: creating initial state file %s", path)
		if writeErr := fs.writeState(&fileState{Collections: map[Collection][]*record{}}); writeErr != nil {
			logger.ErrorF("FileStore: failed to create initial state file %s: %v", path, writeErr)
			return nil, writeErr
		}
	}

	logger.InfoF("FileStore: initialized with path=%s contentType=%s", path, contentType)
	return fs, nil
}

func (fs *FileStore) readState() (*fileState, error) {
	f, err := os.Open(fs.path)
	if err != nil {
		logger.ErrorF("FileStore: failed to open state file %s: %v", fs.path, err)
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var state fileState
	if err := fs.c.Read(f, &state); err != nil {
		logger.WarnF("FileStore: state file %s is malformed, treating as empty: %v", fs.path, err)
		return &fileState{Collections: map[Collection][]*record{}}, nil
	}
	if state.Collections == nil {
		state.Collections = map[Collection][]*record{}
	}
	return &state, nil
}

func (fs *FileStore) writeState(state *fileState) error {
	tmp := fs.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		logger.ErrorF("FileStore: failed to create temp file %s: %v", tmp, err)
		return err
	}

	if writeErr := fs.c.Write(state, f); writeErr != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		logger.ErrorF("FileStore: failed to encode state to %s: %v", tmp, writeErr)
		return writeErr
	}
	if closeErr := f.Close(); closeErr != nil {
		_ = os.Remove(tmp)
		return closeErr
	}

	return os.Rename(tmp, fs.path)
}

func findRecord(recs []*record, id string) int {
	for i, r := range recs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (fs *FileStore) Upsert(_ context.Context, collection Collection, id string, doc any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, err := fs.readState()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	state.NextSeq++
	rec := &record{ID: id, Seq: state.NextSeq, Doc: raw}

	recs := state.Collections[collection]
	if idx := findRecord(recs, id); idx >= 0 {
		recs[idx] = rec
	} else {
		recs = append(recs, rec)
	}
	state.Collections[collection] = recs

	return fs.writeState(state)
}

func (fs *FileStore) Get(_ context.Context, collection Collection, id string, out any) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, err := fs.readState()
	if err != nil {
		return false, err
	}

	idx := findRecord(state.Collections[collection], id)
	if idx < 0 {
		return false, nil
	}
	if err := json.Unmarshal(state.Collections[collection][idx].Doc, out); err != nil {
		return false, err
	}
	return true, nil
}

func (fs *FileStore) Delete(_ context.Context, collection Collection, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, err := fs.readState()
	if err != nil {
		return err
	}

	recs := state.Collections[collection]
	idx := findRecord(recs, id)
	if idx < 0 {
		return ErrNotFound
	}
	state.Collections[collection] = append(recs[:idx], recs[idx+1:]...)

	return fs.writeState(state)
}

func (fs *FileStore) List(_ context.Context, collection Collection, out any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, err := fs.readState()
	if err != nil {
		return err
	}
	return decodeRecords(state.Collections[collection], out)
}

func (fs *FileStore) ListRecent(_ context.Context, collection Collection, n int, out any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, err := fs.readState()
	if err != nil {
		return err
	}

	recs := state.Collections[collection]
	ordered := make([]*record, len(recs))
	copy(ordered, recs)
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	if n >= 0 && n < len(ordered) {
		ordered = ordered[:n]
	}
	return decodeRecords(ordered, out)
}

// decodeRecords marshals recs back into a JSON array and decodes it into
// out in one shot, so out's concrete slice element type is inferred by
// encoding/json rather than assembled by reflection here.
func decodeRecords(recs []*record, out any) error {
	docs := make([]json.RawMessage, len(recs))
	for i, r := range recs {
		docs[i] = r.Doc
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (fs *FileStore) Close() error {
	return nil
}
