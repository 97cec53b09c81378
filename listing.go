package ftpd

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// sixMonths is the LIST year/time cutoff used by `ls -l` and by every FTP
// server that mimics it: entries modified within six months of now show
// "Mon _2 15:04", entries more than six months in the past or in the
// future show "Mon _2  2006"
// (spec.md §4.5).
const sixMonths = 183 * 24 * time.Hour

// FormatLIST renders name/info as one `ls -l`-style line, grounded on the
// teacher's fileStat (handle_dirs.go) which in turn mirrors pyftpdlib's
// format_list. Timestamps report in GMT unless useGMT is false (spec.md
// §4.5's use_localtime override), matching MDTM/MLST's default.
func FormatLIST(name string, info os.FileInfo, now time.Time, useGMT bool) string {
	mode := info.Mode()

	var nlink int64 = 1
	if info.IsDir() {
		nlink = 2
	}

	modTime := info.ModTime()
	if useGMT {
		modTime = modTime.UTC()
		now = now.UTC()
	}

	var timePart string

	age := now.Sub(modTime)
	if age < -sixMonths || age > sixMonths {
		timePart = modTime.Format("Jan _2  2006")
	} else {
		timePart = modTime.Format("Jan _2 15:04")
	}

	return fmt.Sprintf("%s %3d %-8s %-8s %8d %s %s",
		mode.String(), nlink, "ftp", "ftp", info.Size(), timePart, name)
}

// FormatNLST renders just the bare name, one per line, as NLST requires.
func FormatNLST(name string) string { return name }

// permFact computes the RFC-3659 "perm=" fact for a single entry, reusing
// the Authorizer's effective-permission computation so MLSD/MLST and the
// real FTP behavior never disagree (the teacher hardcodes "perm=el" for
// every entry; spec.md §4.5 requires it be derived).
func permFact(a *Authorizer, u *User, virtualPath string, isDir bool) string {
	var b strings.Builder

	if isDir {
		if a.HasPerm(u, PermChangeDir, virtualPath) {
			b.WriteByte('e')
		}

		if a.HasPerm(u, PermList, virtualPath) {
			b.WriteByte('l')
		}

		if a.HasPerm(u, PermMakeDir, virtualPath) {
			b.WriteByte('m')
			b.WriteByte('c')
		}

		if a.HasPerm(u, PermDelete, virtualPath) {
			b.WriteByte('d')
			b.WriteByte('p')
		}
	} else {
		if a.HasPerm(u, PermRetrieve, virtualPath) {
			b.WriteByte('r')
		}

		if a.HasPerm(u, PermStore, virtualPath) {
			b.WriteByte('w')
			b.WriteByte('a')
		}

		if a.HasPerm(u, PermDelete, virtualPath) {
			b.WriteByte('d')
		}
	}

	if a.HasPerm(u, PermRename, virtualPath) {
		b.WriteByte('f')
	}

	return b.String()
}

// MLSxFacts is the set of RFC-3659 facts this server advertises and emits
// (spec.md §5: FEAT must list exactly these under "MLST ").
var MLSxFacts = []string{"size", "modify", "type", "perm", "unique"}

// wantFact reports whether fact should be emitted given the session's
// selected fact set (set via "OPTS MLST facts;", spec.md §5); a nil/empty
// selection means every fact in MLSxFacts.
func wantFact(selected []string, fact string) bool {
	if len(selected) == 0 {
		return true
	}

	for _, f := range selected {
		if f == fact {
			return true
		}
	}

	return false
}

// FormatMLSx renders one RFC-3659 fact line: "fact=value;...; name". unique
// is a string uniquely identifying the underlying file (spec.md §4.5 calls
// for a dev/inode-style token; FileInfoUnique below derives one portably).
// selectedFacts restricts the facts emitted to the session's OPTS MLST
// selection; pass nil to emit every fact in MLSxFacts.
func FormatMLSx(a *Authorizer, u *User, virtualPath, name string, info os.FileInfo, unique string, selectedFacts []string) string {
	var b strings.Builder

	if wantFact(selectedFacts, "type") {
		if info.IsDir() {
			if name == "." || name == ".." {
				fmt.Fprintf(&b, "type=cdir;")
			} else {
				fmt.Fprintf(&b, "type=dir;")
			}
		} else {
			fmt.Fprintf(&b, "type=file;")
		}
	}

	if !info.IsDir() && wantFact(selectedFacts, "size") {
		fmt.Fprintf(&b, "size=%d;", info.Size())
	}

	if wantFact(selectedFacts, "modify") {
		fmt.Fprintf(&b, "modify=%s;", info.ModTime().UTC().Format("20060102150405"))
	}

	if wantFact(selectedFacts, "perm") {
		fmt.Fprintf(&b, "perm=%s;", permFact(a, u, virtualPath, info.IsDir()))
	}

	if unique != "" && wantFact(selectedFacts, "unique") {
		fmt.Fprintf(&b, "unique=%s;", unique)
	}

	b.WriteByte(' ')
	b.WriteString(name)

	return b.String()
}

// FormatMLST renders the single-entry reply body for MLST (no trailing
// facts separator differences from MLSD beyond being one line).
func FormatMLST(a *Authorizer, u *User, virtualPath, name string, info os.FileInfo, unique string, selectedFacts []string) string {
	return FormatMLSx(a, u, virtualPath, name, info, unique, selectedFacts)
}

// fallbackUnique builds a MLST unique= token from mtime and size when no
// portable device/inode pair is available (see listing_unix.go/listing_other.go).
func fallbackUnique(info os.FileInfo) string {
	return fmt.Sprintf("%x-%x", info.ModTime().UnixNano(), info.Size())
}

// DirEntry pairs a directory entry's virtual path/name with its stat info,
// the unit the listing formatters consume.
type DirEntry struct {
	Name string
	Path string // full virtual path, for perm fact computation
	Info os.FileInfo
}

// RenderLIST renders a full LIST body (CRLF-joined, matching the wire
// convention applied by the data-transfer writer).
func RenderLIST(entries []DirEntry, now time.Time, useGMT bool) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, FormatLIST(e.Name, e.Info, now, useGMT))
	}

	return strings.Join(lines, "\r\n")
}

// RenderNLST renders a full NLST body.
func RenderNLST(entries []DirEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Name)
	}

	return strings.Join(lines, "\r\n")
}

// RenderMLSD renders a full MLSD body.
func RenderMLSD(a *Authorizer, u *User, entries []DirEntry, uniqueOf func(os.FileInfo) string, selectedFacts []string) string {
	lines := make([]string, 0, len(entries))

	for _, e := range entries {
		var unique string
		if uniqueOf != nil {
			unique = uniqueOf(e.Info)
		}

		lines = append(lines, FormatMLSx(a, u, e.Path, e.Name, e.Info, unique, selectedFacts))
	}

	return strings.Join(lines, "\r\n")
}
