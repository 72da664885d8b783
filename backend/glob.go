package backend

import (
	"path"
	"strings"
	"sync"
)

// Entry pairs a name with its stat record, as produced by Glob.
type Entry struct {
	Name string
	Stat *FileInfo
}

// Glob expands a listing argument against the backend. Without wildcards
// the result is the entry itself for a file, or the directory contents
// for a directory. `*` and `?` are interpreted against one directory
// level only. Stat concurrency is bounded by maxStats.
func Glob(fsys Filesystem, p string, noWildcards bool, maxStats int) ([]Entry, error) {
	base := path.Base(p)
	if noWildcards || !strings.ContainsAny(base, "*?") {
		fi, err := fsys.Stat(p)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			return []Entry{{Name: base, Stat: fi}}, nil
		}
		names, err := fsys.ReadDir(p)
		if err != nil {
			return nil, err
		}
		return statAll(fsys, p, names, maxStats), nil
	}

	dir := path.Dir(p)
	names, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	matched := names[:0]
	for _, name := range names {
		if ok, _ := path.Match(base, name); ok {
			matched = append(matched, name)
		}
	}
	return statAll(fsys, dir, matched, maxStats), nil
}

// statAll stats every name under dir with at most maxStats calls in
// flight. Entries whose stat fails are dropped; a listing should not
// abort because one file vanished mid-walk.
func statAll(fsys Filesystem, dir string, names []string, maxStats int) []Entry {
	if maxStats <= 0 {
		maxStats = 1
	}

	entries := make([]*FileInfo, len(names))
	sem := make(chan struct{}, maxStats)
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, name string) {
			defer wg.Done()
			defer func() { <-sem }()
			if fi, err := fsys.Stat(path.Join(dir, name)); err == nil {
				entries[i] = fi
			}
		}(i, name)
	}
	wg.Wait()

	out := make([]Entry, 0, len(names))
	for i, name := range names {
		if entries[i] != nil {
			out = append(out, Entry{Name: name, Stat: entries[i]})
		}
	}
	return out
}
