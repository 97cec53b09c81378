package ftpd

import (
	"bufio"
	"io"
)

// ASCIIMode selects the line-ending convention an asciiConverter produces.
type ASCIIMode int

const (
	// ASCIIModeToCRLF is used when sending to the client (RETR/LIST/MLSD in
	// TYPE A): every line read gets a trailing CRLF, the wire convention
	// RFC-959 mandates for ASCII type.
	ASCIIModeToCRLF ASCIIMode = iota
	// ASCIIModeToLF is used when receiving from the client (STOR/APPE/STOU
	// in TYPE A) on a LF-native filesystem: CRLF off the wire collapses to
	// a bare LF before it hits disk.
	ASCIIModeToLF
)

// asciiConverter wraps a reader, rewriting line endings to the requested
// convention one line at a time via bufio.Reader.ReadLine, which already
// strips whatever ending was present. Grounded on the teacher's
// asciiconverter.go; a binary file transferred in ASCII mode still gets
// mangled if it happens to contain newline bytes, matching every FTP
// server's documented ASCII-mode caveat (spec.md §4.5).
type asciiConverter struct {
	reader    *bufio.Reader
	mode      ASCIIMode
	remaining []byte
}

// newASCIIConverter wraps r for the given direction.
func newASCIIConverter(r io.Reader, mode ASCIIMode) *asciiConverter {
	return &asciiConverter{
		reader: bufio.NewReaderSize(r, 4096),
		mode:   mode,
	}
}

func (c *asciiConverter) Read(p []byte) (n int, err error) {
	var data []byte

	if len(c.remaining) > 0 {
		data = c.remaining
		c.remaining = nil
	} else {
		data, _, err = c.reader.ReadLine()
		if err != nil {
			return n, err
		}
	}

	n = len(data)
	if n > 0 {
		maxSize := len(p) - 2
		if maxSize < 0 {
			maxSize = 0
		}

		if n > maxSize {
			copy(p, data[:maxSize])
			c.remaining = data[maxSize:]

			return maxSize, nil
		}

		copy(p[:n], data[:n])
	}

	// A partial read (line too long for p, or a trailing line with no
	// line ending) must not gain a line ending it didn't have on disk;
	// peek at the next byte to tell the two cases apart.
	if err = c.reader.UnreadByte(); err != nil {
		return n, err
	}

	lastByte, err := c.reader.ReadByte()
	if err == nil && lastByte == '\n' {
		switch c.mode {
		case ASCIIModeToCRLF:
			p[n] = '\r'
			p[n+1] = '\n'
			n += 2
		case ASCIIModeToLF:
			p[n] = '\n'
			n++
		}
	}

	return n, err
}
