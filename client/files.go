package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/HalfdanJ/nodeftpd/backend"
	"github.com/HalfdanJ/nodeftpd/utils"
)

var errFileTooBig = errors.New("upload exceeds the slurp limit and the backend cannot stream")

func (c *Handler) modeName() string {
	if c.mode == "ascii" {
		return "ASCII"
	}
	return "BINARY"
}

func (c *Handler) replyFSError(err error) {
	if errors.Is(err, backend.ErrNotExist) {
		c.WriteMessage(StatusActionNotTaken, "Not Found")
		return
	}
	c.WriteMessage(StatusActionNotTaken, "Not Accessible")
}

// logTransfer is the transfer lifecycle record: one line per RETR/STOR
// with user, file, size and duration.
func (c *Handler) logTransfer(op, file string, size int64, start time.Time, err error) {
	errorState := err != nil
	fields := []zap.Field{
		zap.String("id", c.id),
		zap.String("user", c.loginUser),
		zap.String("file", file),
		zap.Int64("filesize", size),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("errorState", errorState),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		zap.L().Warn(op, fields...)
		return
	}
	zap.L().Info(op, fields...)
}

func (c *Handler) handleRETR() {
	p := c.absPath(c.param)
	fp := c.fsPath(p)

	fi, err := c.fs.Stat(fp)
	if err != nil {
		c.resetDataState()
		c.replyFSError(err)
		return
	}

	src, err := c.openSource(fp)
	if err != nil {
		c.resetDataState()
		c.replyFSError(err)
		return
	}

	tr, err := c.TransferOpen()
	if err != nil {
		src.Close()
		c.resetDataState()
		c.WriteMessage(StatusCannotOpenDataConnection, "Can't open data connection")
		return
	}

	c.WriteMessage(StatusFileStatusOK, fmt.Sprintf("Opening %s mode data connection", c.modeName()))

	start := time.Now()
	sent, err := io.Copy(tr, src)
	src.Close()
	// The data socket must be closed before the 226 goes out.
	c.resetDataState()
	c.logTransfer("file:retr", p, fi.Size, start, err)

	select {
	case <-c.commandAbortCtx.Done():
		c.WriteMessage(StatusTransferAborted, "Connection closed; transfer aborted")
	default:
		if err != nil {
			c.WriteMessage(StatusTransferAborted, "Connection closed; transfer aborted")
			return
		}
		c.WriteMessage(StatusClosingDataConn, fmt.Sprintf("Closing data connection, sent %d bytes", sent))
	}
}

// openSource picks the streaming read path unless the configuration or
// the backend forces the single-shot one.
func (c *Handler) openSource(fp string) (io.ReadCloser, error) {
	if !c.serverSetting.UseReadFile {
		if sr, ok := c.fs.(backend.StreamReader); ok {
			return sr.OpenRead(fp)
		}
	}
	data, err := c.fs.ReadFile(fp)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *Handler) handleSTOR() {
	c.storeOrAppend(false)
}

func (c *Handler) handleAPPE() {
	c.storeOrAppend(true)
}

func (c *Handler) storeOrAppend(appendMode bool) {
	p := c.absPath(c.param)
	fp := c.fsPath(p)

	tr, err := c.TransferOpen()
	if err != nil {
		c.resetDataState()
		c.WriteMessage(StatusCannotOpenDataConnection, "Can't open data connection")
		return
	}

	c.WriteMessage(StatusFileStatusOK, "Ok to send data")

	start := time.Now()
	received, err := c.upload(fp, tr, appendMode)
	c.resetDataState()
	c.logTransfer("file:stor", p, received, start, err)

	select {
	case <-c.commandAbortCtx.Done():
		c.WriteMessage(StatusTransferAborted, "Connection closed; transfer aborted")
	default:
		if errors.Is(err, errFileTooBig) {
			c.WriteMessage(StatusFileTooBig, "File too big")
			return
		}
		if err != nil {
			c.WriteMessage(StatusTransferAborted, "Connection closed; transfer aborted")
			return
		}
		c.WriteMessage(StatusClosingDataConn, "Closing data connection")
	}
}

// upload drains the data socket into the backend. Streaming backends
// get a blocking copy, which is the backpressure: reads pause whenever
// the backend write stalls. The slurp path buffers small uploads and
// commits them in one write.
func (c *Handler) upload(fp string, tr utils.Conn, appendMode bool) (int64, error) {
	sw, canStream := c.fs.(backend.StreamWriter)

	if canStream && !c.serverSetting.UseWriteFile {
		w, err := sw.OpenWrite(fp, appendMode, 0644)
		if err != nil {
			return 0, err
		}
		n, err := io.Copy(w, tr)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		return n, err
	}

	data, overflow, err := slurpUpTo(tr, c.serverSetting.UploadMaxSlurpSize)
	if err != nil {
		return int64(len(data)), err
	}
	if !overflow {
		return int64(len(data)), c.fs.WriteFile(fp, data, appendMode, 0644)
	}

	if !canStream {
		return int64(len(data)), errFileTooBig
	}

	// Over the slurp limit: switch to streaming, keeping what is
	// already buffered in front.
	w, err := sw.OpenWrite(fp, appendMode, 0644)
	if err != nil {
		return int64(len(data)), err
	}
	n, err := io.Copy(w, io.MultiReader(bytes.NewReader(data), tr))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// slurpUpTo reads r into a doubling buffer of at most max bytes.
// overflow reports that r still has data past the limit; data then also
// carries the first byte past it. A max of zero or less reports overflow
// without reading.
func slurpUpTo(r io.Reader, max int64) (data []byte, overflow bool, err error) {
	if max <= 0 {
		return nil, true, nil
	}
	size := int64(8 * 1024)
	if size > max {
		size = max
	}
	buf := make([]byte, size)
	var used int64
	for {
		if used == int64(len(buf)) {
			if int64(len(buf)) >= max {
				// One more byte tells a limit-sized upload from a longer one.
				var probe [1]byte
				n, perr := io.ReadFull(r, probe[:])
				if n > 0 {
					return append(buf[:used], probe[:n]...), true, nil
				}
				if perr == io.EOF {
					return buf[:used], false, nil
				}
				return buf[:used], false, perr
			}
			next := int64(len(buf)) * 2
			if next > max {
				next = max
			}
			grown := make([]byte, next)
			copy(grown, buf)
			buf = grown
		}
		n, rerr := r.Read(buf[used:])
		used += int64(n)
		if rerr == io.EOF {
			return buf[:used], false, nil
		}
		if rerr != nil {
			return buf[:used], false, rerr
		}
	}
}

func (c *Handler) handleDELE() {
	p := c.absPath(c.param)
	if err := c.fs.Remove(c.fsPath(p)); err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't delete %s: %v", p, err))
		return
	}
	c.WriteMessage(StatusFileOK, fmt.Sprintf("Removed file %s", p))
}

func (c *Handler) handleRNFR() {
	p := c.absPath(c.param)
	if _, err := c.fs.Stat(c.fsPath(p)); err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't access %s: %v", p, err))
		return
	}
	c.WriteMessage(StatusFileActionPending, "Sure, give me a target")
	c.ctxRnfr = p
}

func (c *Handler) handleRNTO() {
	if c.ctxRnfr == "" {
		c.WriteMessage(StatusBadCommandSequence, "RNFR is expected before RNTO")
		return
	}

	p := c.absPath(c.param)
	if err := c.fs.Rename(c.fsPath(c.ctxRnfr), c.fsPath(p)); err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't rename file: %v", err))
		return
	}

	c.WriteMessage(StatusFileOK, "Done !")
	c.ctxRnfr = ""
}

func (c *Handler) handleSIZE() {
	p := c.absPath(c.param)
	fi, err := c.fs.Stat(c.fsPath(p))
	if err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't access %s: %v", p, err))
		return
	}
	c.WriteMessage(StatusFileStatus, fmt.Sprintf("%d", fi.Size))
}

func (c *Handler) handleMDTM() {
	p := c.absPath(c.param)
	fi, err := c.fs.Stat(c.fsPath(p))
	if err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Couldn't access %s: %v", p, err))
		return
	}
	c.WriteMessage(StatusFileStatus, fi.ModTime.UTC().Format("20060102150405"))
}

func (c *Handler) handleALLO() {
	c.WriteMessage(StatusNotImplemented, "OK, we have the free space")
}
