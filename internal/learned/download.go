package learned

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// modelSource reads the model from its cache file, downloading it first
// when needed.
type modelSource struct {
	path   string
	url    string
	sha256 string
	client *http.Client
	log    *zap.Logger
}

// read returns the model bytes.
//
// A cached file that fails the checksum is discarded and downloaded again
// once when a URL is configured; without a URL it is reported unavailable.
// A missing file without a URL is unavailable too.
func (s *modelSource) read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		sumErr := s.verify(data)
		if sumErr == nil {
			return data, nil
		}
		if s.url == "" {
			return nil, unavailable(sumErr, "cached model is corrupted")
		}
		s.log.Warn("cached model failed checksum, downloading again",
			zap.String("path", s.path), zap.Error(sumErr))
	case !os.IsNotExist(err):
		return nil, unavailable(err, "read cached model")
	case s.url == "":
		return nil, unavailable(nil, "no model at "+s.path+" and no download url")
	}

	if err := s.download(ctx); err != nil {
		return nil, unavailable(err, "download model")
	}
	data, err = os.ReadFile(s.path)
	if err != nil {
		return nil, unavailable(err, "read downloaded model")
	}
	return data, nil
}

// verify checks data against the configured digest, if any.
func (s *modelSource) verify(data []byte) error {
	if s.sha256 == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, s.sha256) {
		return errors.Errorf("sha256 mismatch: got %s, want %s", got, s.sha256)
	}
	return nil
}

// download fetches the model into a temporary file next to the cache path,
// checks it, and renames it into place so a partial download is never seen
// as a cached model.
func (s *modelSource) download(ctx context.Context) (err error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create model cache dir")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	s.log.Info("downloading model", zap.String("url", s.url), zap.String("path", s.path))

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request model")
	}
	defer func() { err = multierr.Append(err, resp.Body.Close()) }()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.part")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, "write model")
	}
	if n == 0 {
		return errors.New("empty model download")
	}

	if s.sha256 != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(got, s.sha256) {
			return errors.Errorf("downloaded model sha256 mismatch: got %s, want %s", got, s.sha256)
		}
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "move model into cache")
	}
	s.log.Info("model downloaded", zap.Int64("bytes", n))
	return nil
}
