package store

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/dmaluka/lornews/pkg/logger"
)

// Expire removes articles older than the given number of days, walking the
// group from min upward and stopping at the first survivor. days == 0
// removes every live article. Article-file removal failures are warnings;
// the index entry is removed regardless. Returns the number of articles
// deleted.
func Expire(ix *Index, days int) (int, error) {
	if ix.mode == ReadOnly {
		return 0, fmt.Errorf("index %s opened read-only", ix.Dir)
	}
	threshold := time.Now().UTC().AddDate(0, 0, -days)

	signal.Ignore(os.Interrupt)
	defer signal.Reset(os.Interrupt)

	b := ix.db.NewBatch()
	deleted := int64(0)
	topicCounts := map[int64]int64{}
	n := ix.min
	for ; n <= ix.max; n++ {
		topic, comment, ok := ix.Number(n)
		if !ok {
			continue // hole left by an earlier expiry
		}
		if days > 0 {
			ts, ok := ix.Timestamp(n)
			if ok && ts.After(threshold) {
				break
			}
		}

		path := filepath.Join(ix.Dir, strconv.FormatInt(topic, 10), strconv.FormatInt(comment, 10))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("article_remove_failed", "path", path, "error", err)
		}

		ns := strconv.FormatInt(n, 10)
		b.Delete([]byte(ns), nil)
		b.Delete([]byte("+"+ns), nil)
		b.Delete([]byte(":"+ns), nil)

		if _, seen := topicCounts[topic]; !seen {
			topicCounts[topic] = ix.TopicCount(topic)
		}
		topicCounts[topic]--
		deleted++
	}

	if deleted == 0 {
		b.Close()
		return 0, nil
	}

	for topic, cnt := range topicCounts {
		key := strconv.FormatInt(topic, 10) + "/"
		if cnt > 0 {
			b.Set([]byte(key), []byte(strconv.FormatInt(cnt, 10)), nil)
			continue
		}
		b.Delete([]byte(key), nil)
		dir := filepath.Join(ix.Dir, strconv.FormatInt(topic, 10))
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			logger.Warn("topic_dir_remove_failed", "dir", dir, "error", err)
		}
	}

	// min advances to one past the last deleted number, even when that
	// leaves the group empty (min == max+1).
	b.Set([]byte("min"), []byte(strconv.FormatInt(n, 10)), nil)
	b.Set([]byte("count"), []byte(strconv.FormatInt(ix.count-deleted, 10)), nil)
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("index %s: expire: %w", ix.Dir, err)
	}
	ix.min = n
	ix.count -= deleted
	return int(deleted), nil
}
