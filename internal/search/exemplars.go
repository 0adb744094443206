package search

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ParseExemplars reads a markdown document of labelled exemplars:
//
//	## Pothole
//	- deep hole in the road
//	| crater near the bus stop |
//
// Each "## " heading starts a label; every non-empty line below it (bullets,
// table rows, plain lines) becomes one exemplar. Table separator rows and
// lines before the first heading are ignored.
func ParseExemplars(r io.Reader) ([]Doc, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		out   []Doc
		label string
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			label = strings.TrimSpace(strings.TrimLeft(line, "#"))
			continue
		}
		if label == "" {
			continue
		}
		if text := exemplarText(line); text != "" {
			out = append(out, Doc{Label: label, Text: text})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadExemplars parses the exemplar markdown at path.
func LoadExemplars(path string) ([]Doc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseExemplars(f)
}

// exemplarText strips bullet and table markup from a line. Table rows are
// flattened into a single space-joined fact; separator rows yield "".
func exemplarText(line string) string {
	if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
		cols := strings.Split(strings.Trim(line, "|"), "|")
		cells := make([]string, 0, len(cols))
		for _, c := range cols {
			cell := strings.TrimSpace(c)
			if strings.Trim(cell, ":- ") == "" {
				continue
			}
			cells = append(cells, cell)
		}
		return strings.Join(cells, " ")
	}
	for _, p := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(line[len(p):])
		}
	}
	return line
}
