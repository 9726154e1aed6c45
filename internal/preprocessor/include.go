package preprocessor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// DirOpener searches include directories. With FS set it reads from that
// file system using slash-separated paths; otherwise from the host.
type DirOpener struct {
	FS          fs.FS
	IncludeDirs []string // searched for quoted and angled includes
	SystemDirs  []string // searched last; files found there are system headers
}

// Open implements Opener. Quoted names are looked up next to the including
// file first, then in IncludeDirs and SystemDirs in order.
func (o *DirOpener) Open(req Request) (*File, error) {
	if o.isAbs(req.Name) {
		if !o.fileExists(req.Name) {
			return nil, fmt.Errorf("%s: %w", req.Name, ErrNotFound)
		}
		return o.readInclude(o.clean(req.Name), -1, false)
	}

	if !req.Angled && req.After < 0 {
		cand := o.join(req.Dir, req.Name)
		if o.fileExists(cand) {
			return o.readInclude(o.clean(cand), -1, false)
		}
	}

	dirs := o.searchPath()
	for i := req.After + 1; i < len(dirs); i++ {
		cand := o.join(dirs[i], req.Name)
		if o.fileExists(cand) {
			return o.readInclude(o.clean(cand), i, i >= len(o.IncludeDirs))
		}
	}
	return nil, fmt.Errorf("%s: %w", req.Name, ErrNotFound)
}

func (o *DirOpener) searchPath() []string {
	dirs := make([]string, 0, len(o.IncludeDirs)+len(o.SystemDirs))
	dirs = append(dirs, o.IncludeDirs...)
	return append(dirs, o.SystemDirs...)
}

func (o *DirOpener) readInclude(p string, index int, system bool) (*File, error) {
	var data []byte
	var err error
	if o.FS != nil {
		data, err = fs.ReadFile(o.FS, p)
	} else {
		data, err = os.ReadFile(p)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return &File{Path: p, Dir: o.dir(p), Index: index, System: system, Data: data}, nil
}

func (o *DirOpener) fileExists(p string) bool {
	var st fs.FileInfo
	var err error
	if o.FS != nil {
		st, err = fs.Stat(o.FS, p)
	} else {
		st, err = os.Stat(p)
	}
	return err == nil && !st.IsDir()
}

func (o *DirOpener) isAbs(p string) bool {
	if o.FS != nil {
		return path.IsAbs(p)
	}
	return filepath.IsAbs(p)
}

func (o *DirOpener) join(dir, name string) string {
	if o.FS != nil {
		if dir == "" {
			return path.Clean(name)
		}
		return path.Join(dir, name)
	}
	return filepath.Join(dir, name)
}

func (o *DirOpener) clean(p string) string {
	if o.FS != nil {
		return path.Clean(p)
	}
	return filepath.Clean(p)
}

func (o *DirOpener) dir(p string) string {
	if o.FS != nil {
		return path.Dir(p)
	}
	return filepath.Dir(p)
}

// notFound reports whether err means the include is simply missing.
func notFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
