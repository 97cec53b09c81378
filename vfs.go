package ftpd

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// VFS maps virtual FTP paths (always '/'-separated, absolute relative to a
// user's virtual root) to real filesystem paths under that user's home
// directory, and enforces the jail invariant from spec.md §3/§8: every real
// path this produces is guaranteed to be under root, or ftp2fs refuses it.
//
// Grounded on the teacher's driver.go (ClientDriver = afero.Fs) and
// handle_dirs.go (absPath); afero lets the same VFS run against a real OS
// tree or an in-memory filesystem in tests.
type VFS struct {
	fs   afero.Fs
	root string // real filesystem path, no trailing slash (except "/")
}

// NewVFS builds a VFS jailing fs to root.
func NewVFS(fs afero.Fs, root string) *VFS {
	return &VFS{fs: fs, root: path.Clean(root)}
}

// Fs returns the underlying afero filesystem.
func (v *VFS) Fs() afero.Fs { return v.fs }

// Ftpnorm resolves a (possibly relative) virtual path argument against cwd
// into a canonical absolute virtual path: it resolves "." and "..", collapses
// "//", and never escapes "/".
func Ftpnorm(cwd, arg string) string {
	var full string
	if strings.HasPrefix(arg, "/") {
		full = arg
	} else {
		full = cwd + "/" + arg
	}

	cleaned := path.Clean("/" + full)
	if cleaned == "." {
		cleaned = "/"
	}

	return cleaned
}

// Ftp2fs translates a virtual path to a real path, asserting validpath
// before returning. Callers must not perform any syscall on a virtual path
// without going through this.
func (v *VFS) Ftp2fs(virtual string) (string, error) {
	real := v.joinRoot(virtual)
	if !v.validPath(real) {
		return "", ErrPathEscapesRoot
	}

	return real, nil
}

func (v *VFS) joinRoot(virtual string) string {
	virtual = path.Clean("/" + virtual)
	if virtual == "/" {
		return v.root
	}

	return path.Join(v.root, virtual)
}

// validPath reports whether real is root itself or a path under root.
// This is a lexical check (no syscalls) because afero filesystems
// (including in-memory ones) don't all support os.Readlink-style symlink
// resolution. Symlinks are not resolved here or in internal/osdriver, so a
// symlink under root whose target lies outside root passes this check.
func (v *VFS) validPath(real string) bool {
	real = path.Clean(real)
	if real == v.root {
		return true
	}

	return strings.HasPrefix(real, v.root+"/")
}

// Fs2ftp converts a real path back to a virtual one. It returns "" if real
// escapes the root.
func (v *VFS) Fs2ftp(real string) string {
	real = path.Clean(real)
	if real == v.root {
		return "/"
	}

	if !strings.HasPrefix(real, v.root+"/") {
		return ""
	}

	rel := strings.TrimPrefix(real, v.root)
	if rel == "" {
		rel = "/"
	}

	return rel
}

// Stat stats a virtual path.
func (v *VFS) Stat(virtual string) (os.FileInfo, error) {
	real, err := v.Ftp2fs(virtual)
	if err != nil {
		return nil, err
	}

	return v.fs.Stat(real)
}

// Open opens a virtual path for reading (directory listing or file read).
func (v *VFS) Open(virtual string) (afero.File, error) {
	real, err := v.Ftp2fs(virtual)
	if err != nil {
		return nil, err
	}

	return v.fs.Open(real)
}

// OpenFile opens a virtual path with the given flags/perm, used for
// STOR/APPE/STOU/RETR/REST (spec.md §4.5, "open(path, mode)").
func (v *VFS) OpenFile(virtual string, flag int, perm os.FileMode) (afero.File, error) {
	real, err := v.Ftp2fs(virtual)
	if err != nil {
		return nil, err
	}

	return v.fs.OpenFile(real, flag, perm)
}

// Mkdir creates a virtual directory.
func (v *VFS) Mkdir(virtual string, perm os.FileMode) error {
	real, err := v.Ftp2fs(virtual)
	if err != nil {
		return err
	}

	return v.fs.MkdirAll(real, perm)
}

// Remove removes a virtual file or empty directory.
func (v *VFS) Remove(virtual string) error {
	real, err := v.Ftp2fs(virtual)
	if err != nil {
		return err
	}

	return v.fs.Remove(real)
}

// RemoveDir removes a virtual directory (RMD); distinct from Remove (DELE)
// so drivers can tell the two FTP verbs apart.
func (v *VFS) RemoveDir(virtual string) error {
	return v.Remove(virtual)
}

// Rename renames src to dst, both virtual paths.
func (v *VFS) Rename(src, dst string) error {
	realSrc, err := v.Ftp2fs(src)
	if err != nil {
		return err
	}

	realDst, err := v.Ftp2fs(dst)
	if err != nil {
		return err
	}

	return v.fs.Rename(realSrc, realDst)
}

// Chmod changes the mode of a virtual path (SITE CHMOD).
func (v *VFS) Chmod(virtual string, mode os.FileMode) error {
	real, err := v.Ftp2fs(virtual)
	if err != nil {
		return err
	}

	return v.fs.Chmod(real, mode)
}

// Chtimes sets mtime/atime of a virtual path (SITE MFMT).
func (v *VFS) Chtimes(virtual string, atime, mtime time.Time) error {
	real, err := v.Ftp2fs(virtual)
	if err != nil {
		return err
	}

	return v.fs.Chtimes(real, atime, mtime)
}

// ReadDir lists the entries of a virtual directory path. afero.Fs doesn't
// expose a streaming Readdir, so the whole directory is read into one
// slice.
func (v *VFS) ReadDir(virtual string) ([]os.FileInfo, error) {
	real, err := v.Ftp2fs(virtual)
	if err != nil {
		return nil, err
	}

	dir, err := v.fs.Open(real)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	return dir.Readdir(-1)
}
