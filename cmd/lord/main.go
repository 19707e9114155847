// lord is the NNTP server: it serves the local article store to
// newsreaders and forwards POST submissions to lorpost.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/dmaluka/lornews/internal/app"
	"github.com/dmaluka/lornews/pkg/config"
	"github.com/dmaluka/lornews/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env")

	var (
		port    = flag.Int("p", 0, "NNTP listen port")
		postCmd = flag.String("c", "", "poster command for POST")
		metrics = flag.String("m", "", "metrics/health HTTP listen address")
		version = flag.Bool("v", false, "print version and exit")
	)
	flag.Parse()
	if *version {
		fmt.Println("lord/" + config.Version)
		return
	}
	if flag.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "usage: lord [-p port] [-c postcmd] [-m addr]")
		os.Exit(1)
	}

	logger.Init()
	a, err := app.New(*port, *postCmd, *metrics)
	if err != nil {
		logger.Fatal("startup_failed", "error", err)
	}
	if err := a.Run(); err != nil {
		logger.Fatal("server_failed", "error", err)
	}
}
