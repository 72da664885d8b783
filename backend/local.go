package backend

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local serves files from a directory on the local disk.
type Local struct {
	base string
}

// NewLocal returns a backend rooted at base. The directory must exist.
func NewLocal(base string) (*Local, error) {
	fi, err := os.Stat(base)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", base, ErrNotDir)
	}
	return &Local{base: base}, nil
}

func (l *Local) resolve(p string) string {
	return filepath.Join(l.base, filepath.FromSlash(p))
}

func (l *Local) Stat(p string) (*FileInfo, error) {
	fi, err := os.Stat(l.resolve(p))
	if err != nil {
		return nil, wrapLocalErr(err)
	}
	uid, gid := fileOwner(fi)
	return &FileInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		UID:     uid,
		GID:     gid,
	}, nil
}

func (l *Local) ReadDir(p string) ([]string, error) {
	entries, err := os.ReadDir(l.resolve(p))
	if err != nil {
		return nil, wrapLocalErr(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (l *Local) ReadFile(p string) ([]byte, error) {
	b, err := os.ReadFile(l.resolve(p))
	return b, wrapLocalErr(err)
}

func (l *Local) WriteFile(p string, data []byte, appendMode bool, perm os.FileMode) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(l.resolve(p), flags, perm)
	if err != nil {
		return wrapLocalErr(err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *Local) Remove(p string) error {
	return wrapLocalErr(os.Remove(l.resolve(p)))
}

func (l *Local) Rename(oldpath, newpath string) error {
	return wrapLocalErr(os.Rename(l.resolve(oldpath), l.resolve(newpath)))
}

func (l *Local) Mkdir(p string, perm os.FileMode) error {
	return wrapLocalErr(os.Mkdir(l.resolve(p), perm))
}

func (l *Local) Rmdir(p string) error {
	fi, err := os.Stat(l.resolve(p))
	if err != nil {
		return wrapLocalErr(err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s: %w", p, ErrNotDir)
	}
	return wrapLocalErr(os.Remove(l.resolve(p)))
}

// OpenRead implements StreamReader.
func (l *Local) OpenRead(p string) (io.ReadCloser, error) {
	f, err := os.Open(l.resolve(p))
	if err != nil {
		return nil, wrapLocalErr(err)
	}
	return f, nil
}

// OpenWrite implements StreamWriter.
func (l *Local) OpenWrite(p string, appendMode bool, perm os.FileMode) (io.WriteCloser, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(l.resolve(p), flags, perm)
	if err != nil {
		return nil, wrapLocalErr(err)
	}
	return f, nil
}

func wrapLocalErr(err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return fmt.Errorf("%v: %w", err, ErrNotExist)
	}
	return err
}
