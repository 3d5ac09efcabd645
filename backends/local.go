package backends

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"github.com/jonwraymond/storageops/config"
	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/resilience"
	"github.com/jonwraymond/storageops/storage"
)

// Local stores objects as files under a root directory. Keys map to
// slash-separated paths below the root.
type Local struct {
	id   string
	root string
}

var _ storage.Backend = (*Local)(nil)

// NewLocal creates the root directory if needed and returns the adapter.
func NewLocal(id, root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("backends: local root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("backends: resolve local root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("backends: create local root: %w", err)
	}
	return &Local{id: id, root: abs}, nil
}

// ID returns the backend identifier.
func (l *Local) ID() string { return l.id }

// Kind returns "local".
func (l *Local) Kind() string { return config.KindLocal }

// Root returns the absolute root directory.
func (l *Local) Root() string { return l.root }

// Probe writes and removes a sentinel file and reports disk capacity.
func (l *Local) Probe(ctx context.Context) health.ProbeResult {
	res := timedProbe(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.CreateTemp(l.root, ".probe-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_, werr := f.Write([]byte("ok"))
		return errors.Join(werr, f.Close(), os.Remove(name))
	})
	if res.OK {
		if avail, total, err := diskCapacity(l.root); err == nil {
			res.AvailableCapacity, res.TotalCapacity = avail, total
		}
	}
	return res
}

// Call performs one operation against the filesystem.
func (l *Local) Call(ctx context.Context, op storage.Operation) resilience.Outcome[storage.Result] {
	if err := ctx.Err(); err != nil {
		return transient(err)
	}
	name, err := l.path(op.Key)
	if err != nil {
		return permanent(err)
	}

	switch op.Type {
	case storage.OpUpload:
		return l.upload(name, op)
	case storage.OpDownload:
		data, err := os.ReadFile(name)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return notFound(op.Key, nil)
		case err != nil:
			return l.ioFailure(err)
		}
		return succeeded(storage.Result{
			Key:         op.Key,
			Data:        data,
			Size:        int64(len(data)),
			Exists:      true,
			ETag:        etag(data),
			ContentType: mime.TypeByExtension(path.Ext(op.Key)),
		})
	case storage.OpDelete:
		if isDir(name) {
			return l.ioFailure(&fs.PathError{Op: "remove", Path: name, Err: syscall.EISDIR})
		}
		err := os.Remove(name)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return succeeded(storage.Result{Key: op.Key})
		case err != nil:
			return l.ioFailure(err)
		}
		return succeeded(storage.Result{Key: op.Key})
	case storage.OpExists:
		info, err := os.Stat(name)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return succeeded(storage.Result{Key: op.Key})
		case err != nil:
			return l.ioFailure(err)
		}
		if !info.Mode().IsRegular() {
			return succeeded(storage.Result{Key: op.Key})
		}
		return succeeded(storage.Result{Key: op.Key, Size: info.Size(), Exists: true})
	default:
		return permanent(fmt.Errorf("%w: unknown operation type %d", storage.ErrInvalidOperation, op.Type))
	}
}

// upload writes to a temp file in the target directory and renames it into
// place, so readers never see a partial object.
func (l *Local) upload(name string, op storage.Operation) resilience.Outcome[storage.Result] {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return l.ioFailure(err)
	}
	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return l.ioFailure(err)
	}
	tmp := f.Name()

	_, err = f.Write(op.Data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, name)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return l.ioFailure(err)
	}

	return succeeded(storage.Result{
		Key:         op.Key,
		Size:        int64(len(op.Data)),
		Exists:      true,
		ETag:        etag(op.Data),
		ContentType: op.ContentType,
	})
}

func (l *Local) path(key string) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

// ioFailure is transient except when the key collides with a directory,
// which no retry can fix.
func (l *Local) ioFailure(err error) resilience.Outcome[storage.Result] {
	if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.EISDIR) || isDir(pathOf(err)) {
		return permanent(fmt.Errorf("%w: key collides with a directory: %w", storage.ErrInvalidOperation, err))
	}
	return transient(fmt.Errorf("backends: %s: %w", l.id, err))
}

func isDir(name string) bool {
	if name == "" {
		return false
	}
	info, err := os.Lstat(name)
	return err == nil && info.IsDir()
}

func pathOf(err error) string {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Path
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		return le.New
	}
	return ""
}

func etag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
