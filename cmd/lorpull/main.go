// lorpull fetches the forum and maintains the article store. One-shot by
// default; -s runs it as a daemon on a cron schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmaluka/lornews/internal/sched"
	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
	"github.com/dmaluka/lornews/pkg/lor"
	"github.com/dmaluka/lornews/pkg/pattern"
	"github.com/dmaluka/lornews/pkg/pull"
)

func main() {
	_ = godotenv.Load(".env")

	var (
		days    = flag.Int("d", 1, "pull window in days; negative disables pulling")
		expire  = flag.Int("e", -1, "expire articles older than days; 0 expires all, negative disables")
		timeout = flag.Int("t", 0, "forum HTTP timeout in seconds")
		quiet   = flag.Bool("q", false, "log warnings and errors only")
		cron    = flag.String("s", "", "run as a daemon on this cron schedule")
		version = flag.Bool("v", false, "print version and exit")
	)
	flag.Parse()
	if *version {
		fmt.Println("lorpull/" + config.Version)
		return
	}
	if flag.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "usage: lorpull [pattern] [-d days] [-e days] [-t seconds] [-q] [-s cron]")
		os.Exit(1)
	}

	level := ""
	if *quiet {
		level = "warn"
	}
	logger.InitWithLevel(level)

	pat := pattern.All
	if flag.NArg() == 1 {
		var err error
		pat, err = pattern.Compile(flag.Arg(0))
		if err != nil {
			logger.Fatal("bad_pattern", "pattern", flag.Arg(0), "error", err)
		}
	}

	root, err := config.Root()
	if err != nil {
		logger.Fatal("startup_failed", "error", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		logger.Fatal("startup_failed", "error", err)
	}
	// flags given on the command line win over config.yml
	given := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { given[f.Name] = true })
	if !given["d"] {
		*days = cfg.Pull.Days
	}
	if !given["e"] {
		*expire = cfg.Pull.ExpireDays
	}
	if !given["s"] {
		*cron = cfg.Pull.Cron
	}
	if err := config.EnsureRoot(root); err != nil {
		logger.Fatal("startup_failed", "error", err)
	}
	cat, err := config.LoadCatalog(root)
	if err != nil {
		logger.Fatal("startup_failed", "error", err)
	}

	to := time.Duration(cfg.Forum.Timeout) * time.Second
	if *timeout > 0 {
		to = time.Duration(*timeout) * time.Second
	}
	client, err := lor.New(cfg.Forum.BaseURL, to, nil)
	if err != nil {
		logger.Fatal("startup_failed", "error", err)
	}
	client.SetRateLimit(4, 4)

	p := &pull.Puller{
		Root:       root,
		Client:     client,
		Catalog:    cat,
		Days:       *days,
		ExpireDays: *expire,
	}

	if *cron == "" {
		if err := p.Run(pat); err != nil {
			logger.Fatal("pull_failed", "error", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sched.Run(ctx, *cron, func() error { return p.Run(pat) }); err != nil {
		logger.Fatal("scheduler_failed", "error", err)
	}
}
