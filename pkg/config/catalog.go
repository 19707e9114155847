package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Group is one newsgroup catalog entry: the local name, the forum's
// numeric section ID and a human-readable description.
type Group struct {
	Name        string
	ID          int64
	Description string
}

// Catalog is the authoritative newsgroup list. Only listed groups exist.
type Catalog struct {
	Groups []Group
	byName map[string]*Group
}

// invalid characters in group names; the catalog format and the pattern
// grammar both depend on these being absent.
const badNameChars = " \t,[]\\*?"

// LoadCatalog parses <root>/groups. Each line is
// "<name> <id> <description>"; blank lines and #-comments are skipped.
func LoadCatalog(root string) (*Catalog, error) {
	path := filepath.Join(root, "groups")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	defer f.Close()

	cat := &Catalog{byName: make(map[string]*Group)}
	sc := bufio.NewScanner(f)
	ln := 0
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("catalog %s:%d: malformed line", path, ln)
		}
		name := parts[0]
		if strings.ContainsAny(name, badNameChars) {
			return nil, fmt.Errorf("catalog %s:%d: invalid group name %q", path, ln, name)
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("catalog %s:%d: invalid group id %q", path, ln, parts[1])
		}
		desc := ""
		if len(parts) == 3 {
			desc = parts[2]
		}
		cat.Groups = append(cat.Groups, Group{Name: name, ID: id, Description: desc})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	for i := range cat.Groups {
		cat.byName[cat.Groups[i].Name] = &cat.Groups[i]
	}
	return cat, nil
}

// Find returns the catalog entry for name, or nil.
func (c *Catalog) Find(name string) *Group {
	return c.byName[name]
}

// cdateLayout is the on-disk creation date format, UTC.
const cdateLayout = "20060102150405"

// CreationDate reads <root>/cdate, the timestamp the catalog of this
// install was created. NEWGROUPS gates on it.
func CreationDate(root string) (time.Time, error) {
	path := filepath.Join(root, "cdate")
	b, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("read creation date %s: %w", path, err)
	}
	t, err := time.ParseInLocation(cdateLayout, strings.TrimSpace(string(b)), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("creation date %s: %w", path, err)
	}
	return t, nil
}

// WriteCreationDate persists the creation date, creating the record when
// an install is first set up.
func WriteCreationDate(root string, t time.Time) error {
	path := filepath.Join(root, "cdate")
	return os.WriteFile(path, []byte(t.UTC().Format(cdateLayout)+"\n"), 0o600)
}
