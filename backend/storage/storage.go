// Package storage adapts a go-storage Storager to the FTP backend
// interface.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	_ "github.com/beyondstorage/go-service-memory"
	"github.com/beyondstorage/go-storage/v4/pairs"
	"github.com/beyondstorage/go-storage/v4/services"
	"github.com/beyondstorage/go-storage/v4/types"
	"github.com/beyondstorage/go-stream"

	"github.com/HalfdanJ/nodeftpd/backend"
)

// ErrNotSupported reports an operation the underlying service cannot do.
var ErrNotSupported = errors.New("operation not supported by storage service")

// Backend serves FTP filesystem calls from a go-storage Storager.
type Backend struct {
	store  types.Storager
	stream *stream.Stream
}

// NewStoragerFromString connects a storage service by connection string.
func NewStoragerFromString(connString string) (types.Storager, error) {
	return services.NewStoragerFromString(connString)
}

// New connects a service by its connection string, e.g. "memory:///ftp".
func New(connString string) (*Backend, error) {
	store, err := NewStoragerFromString(connString)
	if err != nil {
		return nil, err
	}
	return &Backend{store: store}, nil
}

// FromStorager wraps an already connected Storager.
func FromStorager(store types.Storager) *Backend {
	return &Backend{store: store}
}

// Storager exposes the underlying service.
func (b *Backend) Storager() types.Storager {
	return b.store
}

func (b *Backend) Stat(p string) (*backend.FileInfo, error) {
	if p == "/" || p == "" {
		return &backend.FileInfo{Name: "/", Mode: os.ModeDir | 0755, ModTime: time.Now().UTC()}, nil
	}

	o, err := b.store.Stat(p)
	if err != nil {
		// Some services only answer a directory stat when asked for one.
		var dirErr error
		o, dirErr = b.store.Stat(p, pairs.WithObjectMode(types.ModeDir))
		if dirErr != nil {
			return nil, wrapStorageErr(err)
		}
	}
	return objectInfo(o), nil
}

func (b *Backend) ReadDir(p string) ([]string, error) {
	it, err := b.store.List(p)
	if err != nil {
		return nil, wrapStorageErr(err)
	}

	var names []string
	for {
		o, err := it.Next()
		if err != nil {
			if errors.Is(err, types.IterateDone) {
				break
			}
			return nil, wrapStorageErr(err)
		}
		names = append(names, path.Base(o.GetPath()))
	}
	return names, nil
}

func (b *Backend) ReadFile(p string) ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := b.store.Read(p, buf); err != nil {
		return nil, wrapStorageErr(err)
	}
	return buf.Bytes(), nil
}

func (b *Backend) WriteFile(p string, data []byte, appendMode bool, _ os.FileMode) error {
	if appendMode {
		if appender, ok := b.store.(types.Appender); ok {
			return appendTo(appender, b.store, p, data)
		}
		// No appender: read-modify-write.
		existing, err := b.ReadFile(p)
		if err != nil && !errors.Is(err, backend.ErrNotExist) {
			return err
		}
		data = append(existing, data...)
	}
	_, err := b.store.Write(p, bytes.NewReader(data), int64(len(data)))
	return wrapStorageErr(err)
}

func appendTo(appender types.Appender, store types.Storager, p string, data []byte) error {
	o, err := store.Stat(p)
	if err != nil {
		if !errors.Is(err, services.ErrObjectNotExist) {
			return wrapStorageErr(err)
		}
		o, err = appender.CreateAppend(p)
		if err != nil {
			return wrapStorageErr(err)
		}
	}
	if _, err := appender.WriteAppend(o, bytes.NewReader(data), int64(len(data))); err != nil {
		return wrapStorageErr(err)
	}
	return wrapStorageErr(appender.CommitAppend(o))
}

func (b *Backend) Remove(p string) error {
	return wrapStorageErr(b.store.Delete(p))
}

func (b *Backend) Rename(oldpath, newpath string) error {
	mover, ok := b.store.(types.Mover)
	if !ok {
		return ErrNotSupported
	}
	return wrapStorageErr(mover.Move(oldpath, newpath))
}

func (b *Backend) Mkdir(p string, _ os.FileMode) error {
	direr, ok := b.store.(types.Direr)
	if !ok {
		return ErrNotSupported
	}
	_, err := direr.CreateDir(p)
	return wrapStorageErr(err)
}

func (b *Backend) Rmdir(p string) error {
	fi, err := b.Stat(p)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s: %w", p, backend.ErrNotDir)
	}
	return wrapStorageErr(b.store.Delete(p))
}

// OpenRead implements backend.StreamReader through a pipe so transfers
// do not buffer whole objects.
func (b *Backend) OpenRead(p string) (io.ReadCloser, error) {
	if _, err := b.Stat(p); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	go func() {
		_, err := b.store.Read(p, pw)
		pw.CloseWithError(wrapStorageErr(err))
	}()
	return pr, nil
}

func objectInfo(o *types.Object) *backend.FileInfo {
	fi := &backend.FileInfo{
		Name: path.Base(o.GetPath()),
		Mode: 0644,
	}
	if o.GetMode().IsDir() {
		fi.Mode = os.ModeDir | 0755
	}
	if length, ok := o.GetContentLength(); ok {
		fi.Size = length
	}
	if modified, ok := o.GetLastModified(); ok {
		fi.ModTime = modified
	}
	return fi
}

func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrObjectNotExist) {
		return fmt.Errorf("%v: %w", err, backend.ErrNotExist)
	}
	return err
}
