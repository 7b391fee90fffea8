package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store is the narrow blob capability the core consumes: put bytes and get
// back a reference, and issue time-limited download URLs for stored keys.
// The filesystem implementation below suits single-node deployments; a
// bucket-backed one can replace it without touching callers.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	SignDownloadURL(fileKey, originalFileName string) (string, error)
}

const signedURLTTL = 15 * time.Minute

// PreviewKeyPrefix holds re-homed link-preview images. Keys under it are
// public: the source was a scraped og:image anyone could fetch, and the
// reference is stored in rows and index documents, so it must stay valid
// without an expiring signature. The download endpoint serves this prefix
// unsigned.
const PreviewKeyPrefix = "link-previews/"

// FSStore keeps blobs under a local directory and signs download URLs with
// an HMAC so the file-serving endpoint can verify them statelessly.
type FSStore struct {
	dir     string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewFSStore(dir, baseURL, secret string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

// Put stores the bytes under key and returns the public reference.
func (s *FSStore) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", err
	}
	_ = contentType // recorded by callers alongside the key
	return s.baseURL + "/files/" + key, nil
}

// SignDownloadURL issues a time-limited URL for an attachment key. The
// signature binds key, display name and expiry together.
func (s *FSStore) SignDownloadURL(fileKey, originalFileName string) (string, error) {
	exp := s.now().Add(signedURLTTL).Unix()
	sig := s.sign(fileKey, originalFileName, exp)
	q := url.Values{}
	q.Set("name", originalFileName)
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", sig)
	return s.baseURL + "/files/" + fileKey + "?" + q.Encode(), nil
}

// VerifyDownloadURL checks a signature produced by SignDownloadURL.
func (s *FSStore) VerifyDownloadURL(fileKey, originalFileName string, exp int64, sig string) bool {
	if s.now().Unix() > exp {
		return false
	}
	expect := s.sign(fileKey, originalFileName, exp)
	return hmac.Equal([]byte(expect), []byte(sig))
}

// Open returns the stored bytes for a key.
func (s *FSStore) Open(fileKey string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(fileKey)))
}

func (s *FSStore) sign(fileKey, name string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%d", fileKey, name, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
