// Package store provides locked, invariant-checked access to the per-group
// article indexes and the article files under <root>/news.
//
// Each group directory holds a pebble database named "index" plus one
// subdirectory per topic with the individual article files. The index maps
// string keys to string values:
//
//	count      number of live article numbers in the group
//	min        lowest live article number (max+1 if the group is empty)
//	max        highest article number ever assigned
//	{N}        "{TOPIC}/{COMMENT}" store path of article N
//	+{N}       unix seconds of article N's injection date
//	:{N}       tab-separated overview record of article N
//	{TOPIC}/   number of live articles in that topic
//
// An exclusive advisory lock on "index.lock" is taken before the index is
// opened, for readers and writers alike.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"golang.org/x/sys/unix"

	"github.com/dmaluka/lornews/pkg/article"
	"github.com/dmaluka/lornews/pkg/config"
)

// Mode selects how a group index is opened.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
	// Create opens read/write and initializes the group on first use.
	Create
)

// ErrNoSuchGroup is returned when a group directory does not exist and the
// mode does not allow creating it.
var ErrNoSuchGroup = errors.New("no such group")

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("not found")

// BrokenIndexError reports an index whose invariants do not hold. It is
// fatal; the installation is expected to remove and re-pull the group.
type BrokenIndexError struct {
	Dir    string
	Reason string
}

func (e *BrokenIndexError) Error() string {
	return fmt.Sprintf("broken index %s: %s", e.Dir, e.Reason)
}

// Index is an open handle to one group's index. It holds the group's
// advisory lock until Close.
type Index struct {
	Group string
	Dir   string

	db   *pebble.DB
	lock *os.File
	mode Mode

	min, max, count int64
}

var numberRe = regexp.MustCompile(`^[0-9]+$`)

// Open acquires the group's advisory lock and opens its index, validating
// the count/min/max invariants. With Create the group directory and a
// fresh index are set up on first use.
func Open(root, group string, mode Mode) (*Index, error) {
	dir := config.GroupDir(root, group)
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if mode != Create {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchGroup, group)
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create group dir %s: %w", dir, err)
		}
	}

	lock, err := os.OpenFile(filepath.Join(dir, "index.lock"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", dir, err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		lock.Close()
		return nil, fmt.Errorf("lock index %s: %w", dir, err)
	}

	db, err := pebble.Open(filepath.Join(dir, "index"), &pebble.Options{})
	if err != nil {
		unix.Flock(int(lock.Fd()), unix.LOCK_UN)
		lock.Close()
		return nil, fmt.Errorf("open index %s: %w", dir, err)
	}

	ix := &Index{Group: group, Dir: dir, db: db, lock: lock, mode: mode}
	if err := ix.validate(); err != nil {
		ix.Close()
		return nil, err
	}
	return ix, nil
}

// Close releases the index and its advisory lock.
func (ix *Index) Close() error {
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	unix.Flock(int(ix.lock.Fd()), unix.LOCK_UN)
	ix.lock.Close()
	return err
}

// Min returns the lowest live article number, max+1 when the group is
// empty.
func (ix *Index) Min() int64 { return ix.min }

// Max returns the highest article number ever assigned.
func (ix *Index) Max() int64 { return ix.max }

// Count returns the number of live articles.
func (ix *Index) Count() int64 { return ix.count }

// validate re-checks the three counter invariants, initializing a fresh
// index when opened with Create.
func (ix *Index) validate() error {
	count, okC, err := ix.get("count")
	if err != nil {
		return err
	}
	min, okMin, err := ix.get("min")
	if err != nil {
		return err
	}
	max, okMax, err := ix.get("max")
	if err != nil {
		return err
	}

	if !okC && !okMin && !okMax {
		if ix.mode != Create {
			return &BrokenIndexError{Dir: ix.Dir, Reason: "missing counters"}
		}
		b := ix.db.NewBatch()
		b.Set([]byte("count"), []byte("0"), nil)
		b.Set([]byte("min"), []byte("1"), nil)
		b.Set([]byte("max"), []byte("0"), nil)
		if err := b.Commit(pebble.Sync); err != nil {
			return fmt.Errorf("init index %s: %w", ix.Dir, err)
		}
		ix.count, ix.min, ix.max = 0, 1, 0
		return nil
	}
	if !okC || !okMin || !okMax {
		return &BrokenIndexError{Dir: ix.Dir, Reason: "missing counters"}
	}
	for _, v := range []string{count, min, max} {
		if !numberRe.MatchString(v) {
			return &BrokenIndexError{Dir: ix.Dir, Reason: fmt.Sprintf("non-numeric counter %q", v)}
		}
	}
	ix.count, _ = strconv.ParseInt(count, 10, 64)
	ix.min, _ = strconv.ParseInt(min, 10, 64)
	ix.max, _ = strconv.ParseInt(max, 10, 64)
	if ix.min < 1 {
		return &BrokenIndexError{Dir: ix.Dir, Reason: "min is not positive"}
	}
	span := ix.max - ix.min + 1
	if ix.count > 0 && span < ix.count {
		return &BrokenIndexError{Dir: ix.Dir,
			Reason: fmt.Sprintf("count %d exceeds span %d..%d", ix.count, ix.min, ix.max)}
	}
	if ix.count == 0 && span != 0 {
		return &BrokenIndexError{Dir: ix.Dir,
			Reason: fmt.Sprintf("empty group with min %d, max %d", ix.min, ix.max)}
	}
	return nil
}

func (ix *Index) get(key string) (string, bool, error) {
	v, closer, err := ix.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("index %s: get %q: %w", ix.Dir, key, err)
	}
	s := string(v)
	closer.Close()
	return s, true, nil
}

// Number resolves a live article number to its topic and comment IDs.
func (ix *Index) Number(n int64) (topic, comment int64, ok bool) {
	v, found, err := ix.get(strconv.FormatInt(n, 10))
	if err != nil || !found {
		return 0, 0, false
	}
	topic, comment, err = parseStorePath(v)
	if err != nil {
		return 0, 0, false
	}
	return topic, comment, true
}

// FilePath returns the article file path of a topic/comment pair.
func (ix *Index) FilePath(topic, comment int64) string {
	return filepath.Join(ix.Dir, strconv.FormatInt(topic, 10), strconv.FormatInt(comment, 10))
}

// ArticlePath returns the file path of a live article number.
func (ix *Index) ArticlePath(n int64) (string, bool) {
	topic, comment, ok := ix.Number(n)
	if !ok {
		return "", false
	}
	return ix.FilePath(topic, comment), true
}

// Overview returns the stored overview record of a live article number.
func (ix *Index) Overview(n int64) (article.Overview, bool) {
	v, found, err := ix.get(":" + strconv.FormatInt(n, 10))
	if err != nil || !found {
		return article.Overview{}, false
	}
	ov, err := article.ParseOverview(v)
	if err != nil {
		return article.Overview{}, false
	}
	return ov, true
}

// Timestamp returns the injection timestamp of a live article number.
func (ix *Index) Timestamp(n int64) (time.Time, bool) {
	v, found, err := ix.get("+" + strconv.FormatInt(n, 10))
	if err != nil || !found {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

// TopicCount returns the number of live articles in a topic, 0 when the
// topic is unknown.
func (ix *Index) TopicCount(topic int64) int64 {
	v, found, err := ix.get(strconv.FormatInt(topic, 10) + "/")
	if err != nil || !found {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// HasArticle reports whether the comment of a topic is already stored,
// checking for its article file.
func (ix *Index) HasArticle(topic, comment int64) bool {
	_, err := os.Stat(ix.FilePath(topic, comment))
	return err == nil
}

// Scan yields the live article numbers within [lo, hi] in ascending
// order. Bounds are clamped to the group's min/max.
func (ix *Index) Scan(lo, hi int64) []int64 {
	if lo < ix.min {
		lo = ix.min
	}
	if hi > ix.max {
		hi = ix.max
	}
	var nums []int64
	for n := lo; n <= hi; n++ {
		if _, found, err := ix.get(strconv.FormatInt(n, 10)); err == nil && found {
			nums = append(nums, n)
		}
	}
	return nums
}

func parseStorePath(v string) (topic, comment int64, err error) {
	ts, cs, ok := strings.Cut(v, "/")
	if !ok {
		return 0, 0, fmt.Errorf("malformed store path %q", v)
	}
	topic, err = strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed store path %q", v)
	}
	comment, err = strconv.ParseInt(cs, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed store path %q", v)
	}
	return topic, comment, nil
}
