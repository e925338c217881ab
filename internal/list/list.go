// Package list provides the in-memory block lists used to decide which hostnames are answered with NXDOMAIN. Lists
// are loaded from local files or HTTP(S) URLs in either hosts file or one-hostname-per-line format, and can be
// reloaded in place while queries continue to be served.
package list

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/davidsbond/x/set"
)

type (
	// The Type type describes where a block list is loaded from.
	Type int

	// The Format type describes how the lines of a block list are interpreted.
	Format int

	// The Source type describes a single block list.
	Source struct {
		Type   Type
		Format Format
		// The file path or URL of the list, depending on Type.
		Location string
	}

	// The List type contains the entries loaded from a single Source.
	List struct {
		Source  Source
		entries *set.Set[string]
		size    int
	}
)

const (
	TypeFile Type = iota
	TypeHTTP
)

const (
	// FormatHosts expects lines in the form "<ip> <hostname>", as found in /etc/hosts.
	FormatHosts Format = iota
	// FormatOnePerLine expects a single hostname per line.
	FormatOnePerLine
)

// ParseType converts the configuration representation of a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "file":
		return TypeFile, nil
	case "http":
		return TypeHTTP, nil
	default:
		return 0, fmt.Errorf("unknown block list type %q", s)
	}
}

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeHTTP:
		return "http"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseFormat converts the configuration representation of a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "hosts":
		return FormatHosts, nil
	case "one-per-line":
		return FormatOnePerLine, nil
	default:
		return 0, fmt.Errorf("unknown block list format %q", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatHosts:
		return "hosts"
	case FormatOnePerLine:
		return "one-per-line"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

func (s Source) String() string {
	return s.Type.String() + ":" + s.Location
}

// Contains returns true if the normalized hostname is an entry of the list.
func (l *List) Contains(hostname string) bool {
	return l.entries.Contains(Normalize(hostname))
}

// Len returns the number of unique entries in the list.
func (l *List) Len() int {
	return l.size
}

// Normalize returns hostname in the form used for comparison: lower case and without a trailing dot. Both list
// entries and queried hostnames pass through it, so "Ads.Example.COM." matches an entry of "ads.example.com".
func Normalize(hostname string) string {
	return strings.ToLower(strings.TrimSuffix(hostname, "."))
}

// MaxLineSize is the longest line accepted in a block list. A longer line fails the whole list.
const MaxLineSize = 1 << 20

// Parse reads the entries of a block list in the given format from r.
func Parse(ctx context.Context, r io.Reader, format Format) (*List, error) {
	entries := set.New[string]()
	size := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), MaxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		entry, ok := parseLine(scanner.Text(), format)
		if !ok {
			continue
		}

		if !entries.Contains(entry) {
			entries.Put(entry)
			size++
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if size == 0 {
		return nil, ErrNoEntries
	}

	return &List{entries: entries, size: size}, nil
}

func parseLine(line string, format Format) (string, bool) {
	line = strings.TrimSpace(stripComment(line))
	if line == "" {
		return "", false
	}

	if format == FormatHosts {
		// The address is dropped and the last name on the line is kept. Lines with a single field have no address.
		fields := strings.Fields(line)
		line = fields[len(fields)-1]
	}

	entry := Normalize(line)
	return entry, entry != ""
}

// stripComment removes a comment starting with a '#' at the beginning of the line or following whitespace. A '#'
// inside a word is not a comment.
func stripComment(line string) string {
	for i, r := range line {
		if r != '#' {
			continue
		}

		if i == 0 || unicode.IsSpace(rune(line[i-1])) {
			return line[:i]
		}
	}

	return line
}
