package client

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/HalfdanJ/nodeftpd/backend"
	"github.com/HalfdanJ/nodeftpd/utils"
)

// absPath resolves a client argument against the session cwd. The
// result is a normalised server-relative path.
func (c *Handler) absPath(p string) string {
	return utils.WithCwd(c.Path(), p)
}

// fsPath turns a server-relative path into the backend path by joining
// it under the session root.
func (c *Handler) fsPath(p string) string {
	if c.root == "" || c.root == "/" {
		return p
	}
	return path.Join(c.root, p)
}

func (c *Handler) handleCWD() {
	if c.param == ".." {
		c.handleCDUP()
		return
	}

	p := c.absPath(c.param)

	fi, err := c.fs.Stat(c.fsPath(p))
	if err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("CD issue: %v", err))
		return
	}
	if !fi.IsDir() {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Not a directory: %s", p))
		return
	}
	c.SetPath(p)
	c.WriteMessage(StatusFileOK, fmt.Sprintf("CD worked on %s", p))
}

func (c *Handler) handleCDUP() {
	parent := path.Dir(c.Path())
	c.SetPath(parent)
	c.WriteMessage(StatusFileOK, fmt.Sprintf("CDUP worked on %s", parent))
}

func (c *Handler) handlePWD() {
	c.WriteMessage(StatusPathCreated, "\""+utils.PathEscape(c.Path())+"\" is current directory")
}

func (c *Handler) handleMKD() {
	p := c.absPath(c.param)
	if err := c.fs.Mkdir(c.fsPath(p), 0755); err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Could not create %s : %v", p, err))
		return
	}
	c.WriteMessage(StatusPathCreated, fmt.Sprintf("\"%s\" created", utils.PathEscape(p)))
}

func (c *Handler) handleRMD() {
	p := c.absPath(c.param)
	if err := c.fs.Rmdir(c.fsPath(p)); err != nil {
		c.WriteMessage(StatusActionNotTaken, fmt.Sprintf("Could not delete dir %s: %v", p, err))
		return
	}
	c.WriteMessage(StatusFileOK, fmt.Sprintf("Deleted dir %s", p))
}

func (c *Handler) handleLIST() {
	c.list(true)
}

func (c *Handler) handleNLST() {
	c.list(false)
}

func (c *Handler) list(detailed bool) {
	entries, err := c.listEntries()
	if err != nil {
		c.resetDataState()
		c.replyFSError(err)
		return
	}

	tr, err := c.TransferOpen()
	if err != nil {
		c.resetDataState()
		c.WriteMessage(StatusCannotOpenDataConnection, "Can't open data connection")
		return
	}

	c.WriteMessage(StatusFileStatusOK, "Here comes the directory listing")
	c.writeEntries(tr, entries, detailed)
	c.resetDataState()

	select {
	case <-c.commandAbortCtx.Done():
		c.WriteMessage(StatusTransferAborted, "Connection closed; transfer aborted")
	default:
		c.WriteMessage(StatusClosingDataConn, "Transfer OK")
	}
}

// listEntries expands the listing argument into named stat records,
// filtered and sorted per the server settings.
func (c *Handler) listEntries() ([]backend.Entry, error) {
	arg := utils.StripOptions(c.param)
	p := c.absPath(arg)

	entries, err := backend.Glob(c.fs, c.fsPath(p), false, c.serverSetting.MaxStatsAtOnce)
	if err != nil {
		return nil, err
	}

	if c.serverSetting.HideDotFiles {
		kept := entries[:0]
		for _, e := range entries {
			if !strings.HasPrefix(e.Name, ".") {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	c.sortEntries(entries)
	return entries, nil
}

func (c *Handler) sortEntries(entries []backend.Entry) {
	if c.serverSetting.DontSortFilenames {
		return
	}
	if less := c.serverSetting.FilenameSortFunc; less != nil {
		sort.SliceStable(entries, func(i, j int) bool {
			return less(entries[i].Name, entries[j].Name)
		})
		return
	}
	key := c.serverSetting.FilenameSortKey
	if key == nil {
		key = strings.ToLower
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return key(entries[i].Name) < key(entries[j].Name)
	})
}

func (c *Handler) writeEntries(w io.Writer, entries []backend.Entry, detailed bool) {
	if !detailed {
		for _, e := range entries {
			if _, err := fmt.Fprintf(w, "%s\r\n", e.Name); err != nil {
				return
			}
		}
		return
	}

	owners, groups := c.resolveOwners(entries)
	for _, e := range entries {
		line := formatListLine(e, owners[e.Stat.UID], groups[e.Stat.GID])
		if _, err := fmt.Fprintf(w, "%s\r\n", line); err != nil {
			return
		}
	}
}

// resolveOwners maps the uids/gids of a listing to names through the
// injected resolvers, with at most MaxStatsAtOnce lookups in flight.
func (c *Handler) resolveOwners(entries []backend.Entry) (map[int]string, map[int]string) {
	uids := make(map[int]string)
	gids := make(map[int]string)
	for _, e := range entries {
		uids[e.Stat.UID] = "ftp"
		gids[e.Stat.GID] = "ftp"
	}
	uidList := make([]int, 0, len(uids))
	for uid := range uids {
		uidList = append(uidList, uid)
	}
	gidList := make([]int, 0, len(gids))
	for gid := range gids {
		gidList = append(gidList, gid)
	}

	maxAtOnce := c.serverSetting.MaxStatsAtOnce
	if maxAtOnce <= 0 {
		maxAtOnce = 1
	}
	sem := make(chan struct{}, maxAtOnce)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, uid := range uidList {
		wg.Add(1)
		sem <- struct{}{}
		go func(uid int) {
			defer wg.Done()
			defer func() { <-sem }()
			if name, err := c.hooks.UsernameFromUID(uid); err == nil && name != "" {
				mu.Lock()
				uids[uid] = name
				mu.Unlock()
			}
		}(uid)
	}
	for _, gid := range gidList {
		wg.Add(1)
		sem <- struct{}{}
		go func(gid int) {
			defer wg.Done()
			defer func() { <-sem }()
			if name, err := c.hooks.GroupFromGID(gid); err == nil && name != "" {
				mu.Lock()
				gids[gid] = name
				mu.Unlock()
			}
		}(gid)
	}
	wg.Wait()

	return uids, gids
}

func formatListLine(e backend.Entry, owner, group string) string {
	return fmt.Sprintf(
		"%s 1 %s %s %12d %s %s",
		e.Stat.Mode.String(),
		owner,
		group,
		e.Stat.Size,
		e.Stat.ModTime.Format("Jan _2 15:04"),
		e.Name,
	)
}

// handleSTATFile sends the listing over the control channel. The data
// channel is not involved and stays as it is.
func (c *Handler) handleSTATFile() {
	entries, err := c.listEntries()
	if err != nil {
		c.WriteMessage(StatusFileActionNotTaken, err.Error())
		return
	}

	c.writeLine("213-Status follows")
	owners, groups := c.resolveOwners(entries)
	for _, e := range entries {
		c.writeLine(formatListLine(e, owners[e.Stat.UID], groups[e.Stat.GID]))
	}
	c.writeLine("213 End of status")
}
