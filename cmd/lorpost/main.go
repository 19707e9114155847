// lorpost reads one news article on standard input and submits it to the
// forum as a new topic or a comment, reusing the persisted login session.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
	"github.com/dmaluka/lornews/pkg/post"
)

func main() {
	_ = godotenv.Load(".env")

	var (
		timeout = flag.Int("t", 0, "forum HTTP timeout in seconds")
		version = flag.Bool("v", false, "print version and exit")
	)
	flag.Parse()
	if *version {
		fmt.Println("lorpost/" + config.Version)
		return
	}
	if flag.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "usage: lorpost [-t seconds] < article")
		os.Exit(1)
	}

	logger.InitWithLevel("warn")

	root, err := config.Root()
	if err != nil {
		fatal(err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		fatal(err)
	}
	cat, err := config.LoadCatalog(root)
	if err != nil {
		fatal(err)
	}

	to := time.Duration(cfg.Forum.Timeout) * time.Second
	if *timeout > 0 {
		to = time.Duration(*timeout) * time.Second
	}

	p := &post.Poster{
		Root:    root,
		Catalog: cat,
		BaseURL: cfg.Forum.BaseURL,
		Timeout: to,
	}
	if err := p.Submit(os.Stdin); err != nil {
		fatal(err)
	}
	// success is silent: lord forwards stderr, nothing else
}

// fatal writes the single diagnostic line lord captures for its 441
// reply.
func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
