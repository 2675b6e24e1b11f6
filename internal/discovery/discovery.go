// Package discovery enumerates the source files a transaction works on.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/melih-ucgun/forgeguard/internal/core"
)

// Predicate decides whether a file path belongs to the working set.
type Predicate func(path string) bool

// HasSuffix matches paths ending in any of the given suffixes.
func HasSuffix(suffixes ...string) Predicate {
	return func(path string) bool {
		for _, s := range suffixes {
			if s != "" && strings.HasSuffix(path, s) {
				return true
			}
		}
		return false
	}
}

// Discover walks root recursively and returns every file whose path satisfies
// match, in lexical order. A nil match selects every file.
//
// The whole tree is read before returning; callers snapshot the result, and a
// partial list would leave files outside the snapshot.
func Discover(fsys core.FileSystem, root string, match Predicate) ([]string, error) {
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, &core.DiscoveryError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &core.DiscoveryError{Path: root, Err: fmt.Errorf("not a directory")}
	}

	var files []string
	if err := walk(fsys, root, match, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func walk(fsys core.FileSystem, dir string, match Predicate, files *[]string) error {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return &core.DiscoveryError{Path: dir, Err: err}
	}
	// os.ReadDir already sorts; fakes might not.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := walk(fsys, path, match, files); err != nil {
				return err
			}
			continue
		}
		// Fifos, sockets and devices are never sources.
		if t := entry.Type(); !t.IsRegular() && t&fs.ModeSymlink == 0 {
			continue
		}
		if match == nil || match(path) {
			*files = append(*files, path)
		}
	}
	return nil
}

// IsNotFound reports whether err is a discovery failure caused by a missing root.
func IsNotFound(err error) bool {
	var de *core.DiscoveryError
	return errors.As(err, &de) && errors.Is(de.Err, fs.ErrNotExist)
}

// IsAccessDenied reports whether err is a discovery failure caused by permissions.
func IsAccessDenied(err error) bool {
	var de *core.DiscoveryError
	return errors.As(err, &de) && errors.Is(de.Err, fs.ErrPermission)
}
