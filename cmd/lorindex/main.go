// lorindex dumps a group's index for debugging: counters, the number map,
// injection timestamps, overview records and per-topic counters.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
	"github.com/dmaluka/lornews/pkg/store"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: lorindex <group>")
		os.Exit(1)
	}
	logger.InitWithLevel("warn")

	root, err := config.Root()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ix, err := store.Open(root, flag.Arg(0), store.ReadOnly)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer ix.Close()

	fmt.Printf("group: %s\ndir:   %s\ncount: %d\nmin:   %d\nmax:   %d\n",
		ix.Group, ix.Dir, ix.Count(), ix.Min(), ix.Max())
	var topics []int64
	seen := map[int64]bool{}
	for _, n := range ix.Scan(ix.Min(), ix.Max()) {
		topic, comment, _ := ix.Number(n)
		if !seen[topic] {
			seen[topic] = true
			topics = append(topics, topic)
		}
		line := fmt.Sprintf("%6d  %d/%d", n, topic, comment)
		if ts, ok := ix.Timestamp(n); ok {
			line += "  " + ts.Format("2006-01-02 15:04:05")
		}
		if ov, ok := ix.Overview(n); ok {
			line += "  " + ov.Record()
		}
		fmt.Println(line)
	}
	for _, t := range topics {
		fmt.Printf("topic %d/: %d\n", t, ix.TopicCount(t))
	}
}
