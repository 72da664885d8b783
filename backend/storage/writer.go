package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/beyondstorage/go-storage/v4/types"
	"github.com/beyondstorage/go-stream"
)

const upperStorageConnString = "memory://"

var branchID uint64

// StartStream arms the streaming upload path. Uploads then flow through
// a go-stream branch with multipart persistence instead of being
// buffered whole. Optional; OpenWrite falls back to buffering without it.
func (b *Backend) StartStream() {
	s, err := newStream(stream.PersistMethodMultipart, b.store)
	if err != nil {
		return
	}
	b.stream = s
	go s.Serve()
}

func newStream(persistMethod string, under types.Storager) (*stream.Stream, error) {
	upper, err := NewStoragerFromString(fmt.Sprintf("%s/%s", upperStorageConnString, persistMethod))
	if err != nil {
		return nil, err
	}

	return stream.NewWithConfig(&stream.Config{
		Upper:         upper,
		Under:         under,
		PersistMethod: persistMethod,
	})
}

// OpenWrite implements backend.StreamWriter. Plain stores go through a
// go-stream branch when the stream is armed; append mode and
// stream-less backends buffer and commit on Close.
func (b *Backend) OpenWrite(p string, appendMode bool, perm os.FileMode) (io.WriteCloser, error) {
	if !appendMode && b.stream != nil {
		if branch, err := b.stream.StartBranch(atomic.AddUint64(&branchID, 1), p); err == nil {
			return newBranchWriter(branch), nil
		}
	}
	return &bufferedWriter{b: b, path: p, appendMode: appendMode, perm: perm}, nil
}

// branchWriter pumps written bytes into a go-stream branch.
type branchWriter struct {
	branch *stream.Branch
	pw     *io.PipeWriter
	done   chan error
}

func newBranchWriter(branch *stream.Branch) *branchWriter {
	pr, pw := io.Pipe()
	w := &branchWriter{branch: branch, pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := branch.ReadFrom(pr)
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w
}

func (w *branchWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *branchWriter) Close() error {
	w.pw.Close()
	if err := <-w.done; err != nil {
		return err
	}
	return w.branch.Complete()
}

// bufferedWriter collects the upload and persists it in one Write call.
type bufferedWriter struct {
	b          *Backend
	path       string
	appendMode bool
	perm       os.FileMode
	buf        bytes.Buffer
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *bufferedWriter) Close() error {
	return w.b.WriteFile(w.path, w.buf.Bytes(), w.appendMode, w.perm)
}
