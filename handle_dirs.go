package ftpd

import (
	"fmt"
	"path"
	"strings"
	"time"
)

func (c *clientHandler) handleCWD(param string) error {
	p := c.absPath(param)

	if !c.server.driver.Authorizer.HasPerm(c.user, PermChangeDir, p) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	info, err := c.fs.Stat(p)
	if err != nil || !info.IsDir() {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("CD issue: %v", err))

		return nil
	}

	c.SetPath(p)
	c.writeMessage(StatusFileOK, fmt.Sprintf("CD worked on %s", p))

	return nil
}

func (c *clientHandler) handleCDUP(_ string) error {
	parent := path.Dir(c.Path())

	return c.handleCWD(parent)
}

func (c *clientHandler) handlePWD(_ string) error {
	c.writeMessage(StatusPathCreated, fmt.Sprintf("\"%s\" is the current directory", quoteDoubling(c.Path())))

	return nil
}

func (c *clientHandler) handleMKD(param string) error {
	p := c.absPath(param)

	if !c.server.driver.Authorizer.HasPerm(c.user, PermMakeDir, p) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err := c.fs.Mkdir(p, 0o755); err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not create \"%s\": %v", quoteDoubling(p), err))

		return nil
	}

	c.writeMessage(StatusPathCreated, fmt.Sprintf("\"%s\" created", quoteDoubling(p)))

	return nil
}

func (c *clientHandler) handleRMD(param string) error {
	p := c.absPath(param)

	if !c.server.driver.Authorizer.HasPerm(c.user, PermDelete, p) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err := c.fs.RemoveDir(p); err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not delete dir %s: %v", p, err))

		return nil
	}

	c.writeMessage(StatusFileOK, fmt.Sprintf("deleted dir %s", p))

	return nil
}

func quoteDoubling(s string) string {
	if !strings.Contains(s, `"`) {
		return s
	}

	return strings.ReplaceAll(s, `"`, `""`)
}

// supportedListArgs mirrors the teacher's checkLISTArgs: some clients send
// "-la"/"-al" as the LIST argument when they mean "the current directory",
// not a file named "-la". Longest args come first so "-al" isn't shadowed
// by a "-a" prefix match.
var supportedListArgs = []string{"-al", "-la", "-a", "-l"}

func (c *clientHandler) normalizeListArg(param string) string {
	lower := strings.ToLower(param)

	for _, arg := range supportedListArgs {
		if !strings.HasPrefix(lower, arg) {
			continue
		}

		if _, err := c.fs.Stat(c.absPath(param)); err == nil {
			return param
		}

		fields := strings.SplitN(param, " ", 2)
		if len(fields) == 1 {
			return ""
		}

		return fields[1]
	}

	return param
}

// listEntries stats every child of the virtual directory named by param,
// returning the DirEntry slice listing.go's renderers consume.
func (c *clientHandler) listEntries(param string) (string, []DirEntry, error) {
	dirPath := c.absPath(param)

	infos, err := c.fs.ReadDir(dirPath)
	if err != nil {
		return dirPath, nil, err
	}

	entries := make([]DirEntry, 0, len(infos))

	for _, info := range infos {
		entries = append(entries, DirEntry{
			Name: info.Name(),
			Path: Ftpnorm(dirPath, info.Name()),
			Info: info,
		})
	}

	return dirPath, entries, nil
}

func (c *clientHandler) handleLIST(param string) error {
	if !c.server.settings.DisableLISTArgs {
		param = c.normalizeListArg(param)
	}

	dirPath, entries, err := c.listEntries(param)
	if !c.server.driver.Authorizer.HasPerm(c.user, PermList, dirPath) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not list: %v", err))

		return nil
	}

	tr, errOpen := c.TransferOpen(fmt.Sprintf("LIST %s", param), "Using transfer connection")
	if errOpen != nil {
		return nil
	}

	body := RenderLIST(entries, time.Now(), c.server.settings.UseGMTTimes)
	if body != "" {
		body += "\r\n"
	}

	_, writeErr := tr.Write([]byte(body))
	c.TransferClose(writeErr)

	return writeErr
}

func (c *clientHandler) handleNLST(param string) error {
	dirPath, entries, err := c.listEntries(param)
	if !c.server.driver.Authorizer.HasPerm(c.user, PermList, dirPath) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not list: %v", err))

		return nil
	}

	tr, errOpen := c.TransferOpen(fmt.Sprintf("NLST %s", param), "Using transfer connection")
	if errOpen != nil {
		return nil
	}

	body := RenderNLST(entries)
	if body != "" {
		body += "\r\n"
	}

	_, writeErr := tr.Write([]byte(body))
	c.TransferClose(writeErr)

	return writeErr
}

func (c *clientHandler) handleMLSD(param string) error {
	if c.server.settings.DisableMLSD {
		c.writeMessage(StatusSyntaxErrorNotRecognised, "MLSD has been disabled")

		return nil
	}

	dirPath, entries, err := c.listEntries(param)
	if !c.server.driver.Authorizer.HasPerm(c.user, PermList, dirPath) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not list: %v", err))

		return nil
	}

	tr, errOpen := c.TransferOpen(fmt.Sprintf("MLSD %s", param), "Using transfer connection")
	if errOpen != nil {
		return nil
	}

	body := RenderMLSD(c.server.driver.Authorizer, c.user, entries, FileInfoUnique, c.selectedFacts)
	if body != "" {
		body += "\r\n"
	}

	_, writeErr := tr.Write([]byte(body))
	c.TransferClose(writeErr)

	return writeErr
}

func (c *clientHandler) handleMLST(param string) error {
	if c.server.settings.DisableMLST {
		c.writeMessage(StatusSyntaxErrorNotRecognised, "MLST has been disabled")

		return nil
	}

	p := c.absPath(param)

	info, err := c.fs.Stat(p)
	if err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not stat %s: %v", p, err))

		return nil
	}

	name := path.Base(p)
	if name == "/" || name == "." {
		name = "."
	}

	line := FormatMLST(c.server.driver.Authorizer, c.user, p, name, info, FileInfoUnique(info), c.selectedFacts)

	done := c.multilineAnswer(StatusFileOK, "File details")
	c.writeLine(" " + line)
	done()

	return nil
}
