package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghost-auth/vaultcore/unlockcache"
)

var Version = "0.0.0"

func main() {
	help := flag.Bool("help", false, "Show usage information")
	version := flag.Bool("version", false, "Show version")
	ttl := flag.Duration("ttl", unlockcache.DefaultTTL, "how long an unlocked vault's key is cached")

	flag.Usage = func() {
		_, _ = fmt.Fprint(flag.CommandLine.Output(), `ghostauthd - background master-key cache for unlockcache clients.

Usage: ghostauthd [options]

Caches a vault's unlocked master key in memory for a limited time over a
UNIX socket, for clients of the unlockcache package. ghostauthctl does
not contact it. Takes no arguments.

Options:
`)

		flag.PrintDefaults()
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	if *version {
		fmt.Printf("%v\n", Version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer cancel()

	srv := unlockcache.NewServer(*ttl)

	log.Println(unlockcache.Run(ctx, srv))
}
