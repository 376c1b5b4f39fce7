// Package syncengine implements the content-addressed secret sync store
// (spec C8): encrypt a secret bundle (C7), compute its content identifier
// locally, write it through a local cache, best-effort upload it to a
// local IPFS daemon, and keep a metadata index plus an append-only sync
// history so a later pull can find it again even if the daemon that
// produced it is long gone.
package syncengine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gwicho38/lsh-sub006/clients"
	restclient "github.com/gwicho38/lsh-sub006/clients/rest"
	"github.com/gwicho38/lsh-sub006/internal/errkind"
	"github.com/gwicho38/lsh-sub006/internal/secretbundle"
	"github.com/gwicho38/lsh-sub006/internal/storage"
	"github.com/gwicho38/lsh-sub006/l3"
)

var logger = l3.Get()

// daemonBaseURL is the default local IPFS daemon API this engine probes
// before falling back to public gateways. It is not configurable per spec
// §4.8; every environment runs (or doesn't run) the same daemon.
const daemonBaseURL = "http://127.0.0.1:5001"

// gateways are the public HTTP gateways tried, in order, when neither the
// local cache nor the local daemon has the requested bundle.
var gateways = []string{
	"https://ipfs.io/ipfs/",
	"https://dweb.link/ipfs/",
}

// SecretBundleMetadata is the durable pointer to the latest pushed bundle
// for one (gitRepo?, environment) key (spec §3, C8).
type SecretBundleMetadata struct {
	Environment string `json:"environment"`
	GitRepo     string `json:"gitRepo,omitempty"`
	GitBranch   string `json:"gitBranch,omitempty"`
	CID         string `json:"cid"`
	Timestamp   int64  `json:"timestamp"`
	KeysCount   int    `json:"keysCount"`
	Encrypted   bool   `json:"encrypted"`
}

// HistoryEntry is one append-only record of a push, independent of
// whether it is still the latest metadata entry for its key.
type HistoryEntry struct {
	CID         string `json:"cid"`
	Filename    string `json:"filename"`
	Timestamp   int64  `json:"timestamp"`
	Size        int64  `json:"size"`
	Environment string `json:"environment,omitempty"`
	GitRepo     string `json:"gitRepo,omitempty"`
}

// PushResult is returned by Push.
type PushResult struct {
	CID       string
	OnNetwork bool
}

// Engine coordinates encryption, CID computation, local caching, daemon
// upload, and metadata/history bookkeeping for secret bundles.
type Engine struct {
	backend   storage.Backend
	cacheDir  string
	http      *restclient.Client
	breaker   *clients.CircuitBreaker
	probeHTTP *http.Client
	locks     sync.Map // key(string) -> *sync.Mutex
}

// Options configures an Engine.
type Options struct {
	// CacheDir is where encrypted bundles are cached, one file per CID.
	// Defaults to "secrets-cache" under the current working directory.
	CacheDir string
}

// New builds an Engine backed by backend for metadata/history persistence
// (spec's CollectionConfig/CollectionHistory collections, reusing C1
// rather than standing up a second file store) and a cacheDir for
// byte-identical ciphertext caching.
func New(backend storage.Backend, opts Options) (*Engine, error) {
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = "secrets-cache"
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("syncengine: create cache dir: %w", err)
	}

	httpClient := restclient.NewClient().
		ReqTimeout(10).
		Retry(2, 200)
	breaker := clients.NewCircuitBreaker(&clients.BreakerInfo{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		MaxHalfOpen:      1,
		Timeout:          30,
	})

	return &Engine{
		backend:   backend,
		cacheDir:  cacheDir,
		http:      httpClient,
		breaker:   breaker,
		probeHTTP: &http.Client{Timeout: 2 * time.Second},
	}, nil
}

// metaKey returns the metadata/history/lock key for (gitRepo, environment)
// per spec §4.8: "<gitRepo>_<env>" when a repo is given, else just "<env>".
func metaKey(gitRepo, environment string) string {
	if gitRepo == "" {
		return environment
	}
	return gitRepo + "_" + environment
}

// lockFor returns the per-key mutex serializing push/pull against the same
// (gitRepo, environment), creating it on first use.
func (e *Engine) lockFor(key string) *sync.Mutex {
	actual, _ := e.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// computeCID derives the local content identifier for ciphertext: the
// "bafkrei" CIDv1 raw-leaf prefix followed by the first 52 hex characters
// of its sha256 digest. This is computed before any network call so a
// push always has a CID even if the daemon is unreachable.
func computeCID(ciphertext []byte) string {
	sum := sha256.Sum256(ciphertext)
	return "bafkrei" + hex.EncodeToString(sum[:])[:52]
}

func (e *Engine) cachePath(cid string) string {
	return filepath.Join(e.cacheDir, cid+".encrypted")
}

func (e *Engine) writeCache(cid string, ciphertext []byte) error {
	tmp := e.cachePath(cid) + ".tmp"
	if err := os.WriteFile(tmp, ciphertext, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, e.cachePath(cid))
}

func (e *Engine) readCache(cid string) ([]byte, bool) {
	data, err := os.ReadFile(e.cachePath(cid))
	if err != nil {
		return nil, false
	}
	return data, true
}

// PushRequest describes one push call.
type PushRequest struct {
	Secrets     []secretbundle.Secret
	Key         string
	Environment string
	GitRepo     string
	GitBranch   string
}

// Push runs the full state machine: IDLE -> ENCRYPT -> LOCAL_CID ->
// CACHE_WRITE -> (DAEMON_UPLOAD|SKIP) -> METADATA_UPDATE ->
// HISTORY_APPEND -> DONE (spec §4.8).
func (e *Engine) Push(ctx context.Context, req PushRequest) (PushResult, error) {
	if req.Environment == "" {
		return PushResult{}, errkind.New(errkind.InvalidInput, "environment is required")
	}

	key := metaKey(req.GitRepo, req.Environment)
	mu := e.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	// ENCRYPT
	envelope, err := secretbundle.Encrypt(req.Key, req.Secrets)
	if err != nil {
		return PushResult{}, errkind.Wrap(errkind.EncryptionFailure, "encrypt secret bundle", err)
	}
	ciphertext := []byte(envelope)

	// LOCAL_CID
	cid := computeCID(ciphertext)

	// CACHE_WRITE
	if err := e.writeCache(cid, ciphertext); err != nil {
		return PushResult{}, errkind.Wrap(errkind.StorageFailure, "write secret cache", err)
	}

	// DAEMON_UPLOAD or SKIP
	onNetwork := false
	if e.daemonReachable(ctx) {
		if uploaded, uploadErr := e.uploadToDaemon(ctx, ciphertext); uploadErr == nil {
			cid = uploaded
			onNetwork = true
			// The daemon may compute a different CID than our local
			// one (different hashing/codec parameters); keep the
			// cache keyed by whichever CID is now authoritative.
			if err := e.writeCache(cid, ciphertext); err != nil {
				logger.ErrorF("syncengine: failed to re-cache under daemon cid %s: %v", cid, err)
			}
		} else {
			logger.WarnF("syncengine: daemon upload failed, keeping local cid %s: %v", cid, uploadErr)
		}
	} else {
		logger.InfoF("syncengine: daemon unreachable, bundle %s not yet on network", cid)
	}

	// METADATA_UPDATE
	meta := SecretBundleMetadata{
		Environment: req.Environment,
		GitRepo:     req.GitRepo,
		GitBranch:   req.GitBranch,
		CID:         cid,
		Timestamp:   nowMillis(),
		KeysCount:   len(req.Secrets),
		Encrypted:   true,
	}
	if err := e.backend.Upsert(ctx, storage.CollectionConfig, key, meta); err != nil {
		return PushResult{}, errkind.Wrap(errkind.StorageFailure, "update metadata index", err)
	}

	// HISTORY_APPEND
	hist := HistoryEntry{
		CID:         cid,
		Filename:    key + ".bundle",
		Timestamp:   meta.Timestamp,
		Size:        int64(len(ciphertext)),
		Environment: req.Environment,
		GitRepo:     req.GitRepo,
	}
	if err := e.backend.Upsert(ctx, storage.CollectionHistory, fmt.Sprintf("%s-%d", key, meta.Timestamp), hist); err != nil {
		return PushResult{}, errkind.Wrap(errkind.StorageFailure, "append sync history", err)
	}

	// DONE
	return PushResult{CID: cid, OnNetwork: onNetwork}, nil
}

// PullRequest describes one pull call.
type PullRequest struct {
	Key         string
	Environment string
	GitRepo     string
}

// Pull resolves the latest CID for (gitRepo, environment) from metadata
// (falling back to sync history), retrieves the ciphertext via the cache,
// local daemon, or public gateways in that order, and decrypts it.
func (e *Engine) Pull(ctx context.Context, req PullRequest) ([]secretbundle.Secret, error) {
	if req.Environment == "" {
		return nil, errkind.New(errkind.InvalidInput, "environment is required")
	}

	key := metaKey(req.GitRepo, req.Environment)
	mu := e.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	cid, err := e.resolveCID(ctx, key)
	if err != nil {
		return nil, err
	}

	ciphertext, err := e.retrieve(ctx, cid)
	if err != nil {
		return nil, errkind.Wrap(errkind.NotFound, fmt.Sprintf("retrieve secret bundle %s", cid), err)
	}

	secrets, err := secretbundle.Decrypt(req.Key, string(ciphertext))
	if err != nil {
		return nil, errkind.Wrap(errkind.DecryptionFailure, "decrypt secret bundle", err)
	}
	return secrets, nil
}

// resolveCID looks up the latest metadata entry for key, falling back to
// the most recent sync history entry for the same key if no metadata
// entry exists (e.g. the index was lost but history wasn't).
func (e *Engine) resolveCID(ctx context.Context, key string) (string, error) {
	var meta SecretBundleMetadata
	ok, err := e.backend.Get(ctx, storage.CollectionConfig, key, &meta)
	if err != nil {
		return "", errkind.Wrap(errkind.StorageFailure, "read metadata index", err)
	}
	if ok {
		return meta.CID, nil
	}

	var history []HistoryEntry
	if err := e.backend.List(ctx, storage.CollectionHistory, &history); err != nil {
		return "", errkind.Wrap(errkind.StorageFailure, "read sync history", err)
	}
	var latest *HistoryEntry
	for i := range history {
		h := history[i]
		if metaKey(h.GitRepo, h.Environment) != key {
			continue
		}
		if latest == nil || h.Timestamp > latest.Timestamp {
			latest = &h
		}
	}
	if latest == nil {
		return "", errkind.New(errkind.NotFound, fmt.Sprintf("no secret bundle recorded for %q", key))
	}
	return latest.CID, nil
}

// retrieve fetches the ciphertext for cid, in order: local cache, local
// daemon, public gateways. The first source that succeeds is written
// through to the local cache before the bytes are returned.
func (e *Engine) retrieve(ctx context.Context, cid string) ([]byte, error) {
	if data, ok := e.readCache(cid); ok {
		return data, nil
	}

	if e.daemonReachable(ctx) {
		if data, err := e.fetch(ctx, daemonBaseURL+"/api/v0/cat?arg="+cid); err == nil {
			_ = e.writeCache(cid, data)
			return data, nil
		}
	}

	var lastErr error
	for _, gw := range gateways {
		data, err := e.fetch(ctx, gw+cid)
		if err != nil {
			lastErr = err
			continue
		}
		_ = e.writeCache(cid, data)
		return data, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no retrieval path for %s", cid)
	}
	return nil, lastErr
}

func (e *Engine) fetch(ctx context.Context, url string) ([]byte, error) {
	req := e.http.NewRequest(url, http.MethodGet)
	resp, err := e.http.Execute(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("syncengine: %s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// daemonReachable probes the local IPFS daemon's version endpoint with a
// short timeout; it never returns an error, only a boolean, since the
// daemon being down is an ordinary and expected condition.
func (e *Engine) daemonReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, daemonBaseURL+"/api/v0/version", nil)
	if err != nil {
		return false
	}
	resp, err := e.probeHTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// uploadToDaemon POSTs ciphertext to the local daemon's add endpoint and
// returns the daemon-assigned CID, which becomes authoritative over the
// locally-computed one.
func (e *Engine) uploadToDaemon(ctx context.Context, ciphertext []byte) (string, error) {
	if err := e.breaker.CanExecute(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, daemonBaseURL+"/api/v0/add", bytes.NewReader(ciphertext))
	if err != nil {
		e.breaker.OnExecution(false)
		return "", err
	}
	resp, err := e.probeHTTP.Do(req)
	if err != nil {
		e.breaker.OnExecution(false)
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.breaker.OnExecution(false)
		return "", fmt.Errorf("syncengine: daemon add returned status %d", resp.StatusCode)
	}

	var body struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Hash == "" {
		e.breaker.OnExecution(false)
		return "", fmt.Errorf("syncengine: malformed daemon add response: %w", err)
	}
	e.breaker.OnExecution(true)
	return body.Hash, nil
}

// nowMillis is overridable in tests; production code always uses the wall
// clock.
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}
