// Package rootset reads the list of release roots: one stable key per line,
// optionally followed by a tab and a descriptive label.
package rootset

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
)

// Entry is one root.
type Entry struct {
	Key   instance.Key
	Label string
}

// Set is the parsed root list in file order, without duplicates.
type Set struct {
	Entries []Entry
}

// Keys returns the root keys in file order.
func (s *Set) Keys() []instance.Key {
	out := make([]instance.Key, len(s.Entries))
	for n, e := range s.Entries {
		out[n] = e.Key
	}
	return out
}

// Label returns the label given for a key.
func (s *Set) Label(k instance.Key) string {
	for _, e := range s.Entries {
		if e.Key == k {
			return e.Label
		}
	}
	return ""
}

// Parse reads a root list. Blank lines and lines starting with '#' are
// ignored; a repeated key keeps its first label.
func Parse(r io.Reader) (*Set, error) {
	set := &Set{}
	seen := make(map[instance.Key]bool)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		idText, label, _ := strings.Cut(text, "\t")
		id, err := strconv.ParseInt(strings.TrimSpace(idText), 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.Configurationf("root list line %d: %q is not an instance key", line, idText)
		}
		k := instance.Key(id)
		if seen[k] {
			continue
		}
		seen[k] = true
		set.Entries = append(set.Entries, Entry{Key: k, Label: strings.TrimSpace(label)})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.MarkConfiguration(err, "read root list")
	}
	if len(set.Entries) == 0 {
		return nil, errors.Configurationf("root list is empty")
	}
	return set, nil
}

// Load reads a root list file.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithHint(
			errors.MarkConfiguration(err, "open root list"),
			"set release.root_file to a readable file")
	}
	defer f.Close()
	return Parse(f)
}
