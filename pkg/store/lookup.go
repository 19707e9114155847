package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dmaluka/lornews/pkg/article"
	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
)

// Location is the result of a message-ID lookup.
type Location struct {
	Group  string
	Number int64
	Path   string
}

// ByMessageID resolves a message-ID to the group and article number it was
// stored under. Every catalog group's index is scanned for a value equal
// to "{topic}/{comment}"; the first hit wins. Returns ErrNotFound when the
// ID is unknown and an error when the ID does not match the forum scheme.
func ByMessageID(root string, cat *config.Catalog, id string) (Location, error) {
	topic, comment, err := article.ParseMessageID(id)
	if err != nil {
		return Location{}, err
	}
	want := fmt.Sprintf("%d/%d", topic, comment)

	for _, g := range cat.Groups {
		ix, err := Open(root, g.Name, ReadOnly)
		if err != nil {
			if errors.Is(err, ErrNoSuchGroup) {
				continue
			}
			return Location{}, err
		}
		loc, found := ix.findValue(want)
		ix.Close()
		if found {
			loc.Group = g.Name
			return loc, nil
		}
	}
	return Location{}, ErrNotFound
}

func (ix *Index) findValue(want string) (Location, bool) {
	for n := ix.min; n <= ix.max; n++ {
		v, found, err := ix.get(strconv.FormatInt(n, 10))
		if err != nil {
			logger.Warn("index_scan_failed", "dir", ix.Dir, "number", n, "error", err)
			return Location{}, false
		}
		if found && v == want {
			path, _ := ix.ArticlePath(n)
			return Location{Number: n, Path: path}, true
		}
	}
	return Location{}, false
}
