package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/vibeshift/dashboard/refreshworker"
)

func main() {
	runOnce := flag.String("run-once", "", "Run one job (refresh-newsletter | refresh-cache) and exit")
	flag.Parse()

	if err := refreshworker.Run(refreshworker.Options{RunOnce: *runOnce}); err != nil {
		log.Error().Err(err).Msg("refresh-worker exited with error")
		os.Exit(1)
	}
}
