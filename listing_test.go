package ftpd

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statOf(t *testing.T, fs afero.Fs, path string) os.FileInfo {
	t.Helper()

	info, err := fs.Stat(path)
	require.NoError(t, err)

	return info
}

func TestFormatLISTRecentVsOldDateFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	require.NoError(t, afero.WriteFile(fs, "/recent.txt", []byte("hi"), 0o644))
	recent := statOf(t, fs, "/recent.txt")

	line := FormatLIST("recent.txt", recent, now, true)
	assert.Contains(t, line, "recent.txt")
	assert.NotContains(t, line, "  2026") // recent file uses HH:MM, not a bare year

	old := &fakeFileInfo{name: "old.txt", modTime: now.Add(-365 * 24 * time.Hour)}
	oldLine := FormatLIST("old.txt", old, now, true)
	assert.Contains(t, oldLine, "2025")
}

func TestFormatLISTConvertsToGMTByDefault(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	local := time.FixedZone("TEST+0200", 2*60*60)

	info := &fakeFileInfo{name: "a.txt", modTime: time.Date(2026, 7, 31, 10, 30, 0, 0, local)}

	gmtLine := FormatLIST("a.txt", info, now, true)
	assert.Contains(t, gmtLine, "08:30") // 10:30+02:00 == 08:30 UTC

	localLine := FormatLIST("a.txt", info, now, false)
	assert.Contains(t, localLine, "10:30")
}

type fakeFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

func (f *fakeFileInfo) Name() string       { return f.name }
func (f *fakeFileInfo) Size() int64        { return f.size }
func (f *fakeFileInfo) Mode() os.FileMode  { return 0o644 }
func (f *fakeFileInfo) ModTime() time.Time { return f.modTime }
func (f *fakeFileInfo) IsDir() bool        { return f.isDir }
func (f *fakeFileInfo) Sys() interface{}   { return nil }

func TestPermFactReflectsAuthorizer(t *testing.T) {
	a := NewAuthorizer(NewScheduler())
	u, err := a.AddUser("bob", "x", "/home/bob", "elr", "", "")
	require.NoError(t, err)

	assert.Equal(t, "r", permFact(a, u, "/docs/file.txt", false))

	require.NoError(t, a.OverridePerm("bob", "/docs", "elrwf", true))
	assert.Equal(t, "rwaf", permFact(a, u, "/docs/file.txt", false))
}

func TestFormatMLSxDirVsFile(t *testing.T) {
	a := NewAuthorizer(NewScheduler())
	u, err := a.AddUser("bob", "x", "/home/bob", "elr", "", "")
	require.NoError(t, err)

	fileInfo := &fakeFileInfo{name: "a.txt", size: 42, modTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	line := FormatMLSx(a, u, "/a.txt", "a.txt", fileInfo, "", nil)
	assert.Contains(t, line, "type=file;size=42;")
	assert.Contains(t, line, "modify=20260102030405;")
	assert.True(t, strings.HasSuffix(line, " a.txt"))

	dirInfo := &fakeFileInfo{name: "sub", isDir: true, modTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	dirLine := FormatMLSx(a, u, "/sub", "sub", dirInfo, "123.456", nil)
	assert.Contains(t, dirLine, "type=dir;")
	assert.Contains(t, dirLine, "unique=123.456;")
}

func TestRenderMLSDJoinsEntriesWithCRLF(t *testing.T) {
	a := NewAuthorizer(NewScheduler())
	u, err := a.AddUser("bob", "x", "/home/bob", "elr", "", "")
	require.NoError(t, err)

	entries := []DirEntry{
		{Name: "a.txt", Path: "/a.txt", Info: &fakeFileInfo{name: "a.txt"}},
		{Name: "b.txt", Path: "/b.txt", Info: &fakeFileInfo{name: "b.txt"}},
	}

	body := RenderMLSD(a, u, entries, nil, nil)
	assert.Contains(t, body, "\r\n")
	assert.Contains(t, body, "a.txt")
	assert.Contains(t, body, "b.txt")
}

func TestFormatMLSxRestrictsToSelectedFacts(t *testing.T) {
	a := NewAuthorizer(NewScheduler())
	u, err := a.AddUser("bob", "x", "/home/bob", "elr", "", "")
	require.NoError(t, err)

	fileInfo := &fakeFileInfo{name: "a.txt", size: 42, modTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	line := FormatMLSx(a, u, "/a.txt", "a.txt", fileInfo, "u1", []string{"size"})
	assert.Contains(t, line, "size=42;")
	assert.NotContains(t, line, "modify=")
	assert.NotContains(t, line, "perm=")
	assert.NotContains(t, line, "unique=")
}
