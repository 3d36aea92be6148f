// Package disk stores uploaded content as files in a directory.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/store"
)

// Provider implements store.ContentProvider on the local filesystem. Handles
// are bare file names inside Dir.
type Provider struct {
	Dir string
}

var _ store.ContentProvider = (*Provider)(nil)

// New creates the directory if needed and returns a Provider for it.
func New(dir string) (*Provider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Provider{Dir: dir}, nil
}

// Save writes r to a new file named after name with a unique suffix, keeping
// the extension so content types can be derived from the handle.
func (p *Provider) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "upload"
	}
	handle := fmt.Sprintf("%s-%d-%s%s", stem, time.Now().UnixMilli(), uuid.NewString()[:8], ext)

	f, err := os.OpenFile(filepath.Join(p.Dir, handle), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", handle, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write %s: %w", handle, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", handle, err)
	}
	return handle, nil
}

// Open opens the file for handle. Handles that try to leave Dir are reported
// as missing.
func (p *Provider) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if handle == "" || handle != filepath.Base(handle) || handle == ".." {
		return nil, x402.ErrContentNotFound
	}
	f, err := os.Open(filepath.Join(p.Dir, handle))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, x402.ErrContentNotFound
	}
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, x402.ErrContentNotFound
	}
	return f, nil
}
