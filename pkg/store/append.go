package store

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/pebble"

	"github.com/dmaluka/lornews/pkg/article"
)

// Append stores an article and assigns it the next article number. The
// article file write and the index update form one transaction: SIGINT is
// ignored for the duration so the two cannot be torn apart.
func Append(ix *Index, a *article.Article) (int64, error) {
	if ix.mode == ReadOnly {
		return 0, fmt.Errorf("index %s opened read-only", ix.Dir)
	}

	signal.Ignore(os.Interrupt)
	defer signal.Reset(os.Interrupt)

	topicDir := filepath.Join(ix.Dir, strconv.FormatInt(a.Topic, 10))
	if err := os.MkdirAll(topicDir, 0o700); err != nil {
		return 0, fmt.Errorf("create topic dir %s: %w", topicDir, err)
	}
	path := filepath.Join(topicDir, strconv.FormatInt(a.Comment, 10))
	if err := os.WriteFile(path, a.Encode(), 0o600); err != nil {
		return 0, fmt.Errorf("write article %s: %w", path, err)
	}

	n := ix.max + 1
	ns := strconv.FormatInt(n, 10)
	topicKey := strconv.FormatInt(a.Topic, 10) + "/"
	topicCount := ix.TopicCount(a.Topic) + 1

	b := ix.db.NewBatch()
	b.Set([]byte(ns), []byte(fmt.Sprintf("%d/%d", a.Topic, a.Comment)), nil)
	b.Set([]byte("+"+ns), []byte(strconv.FormatInt(a.Injection.Unix(), 10)), nil)
	b.Set([]byte(":"+ns), []byte(a.Overview().Record()), nil)
	b.Set([]byte(topicKey), []byte(strconv.FormatInt(topicCount, 10)), nil)
	b.Set([]byte("max"), []byte(ns), nil)
	b.Set([]byte("count"), []byte(strconv.FormatInt(ix.count+1, 10)), nil)
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("index %s: append %d: %w", ix.Dir, n, err)
	}
	ix.max = n
	ix.count++
	return n, nil
}
