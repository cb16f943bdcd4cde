package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/glemaitre/ramp-board-1/binaries/rampd/cli"
)

// Daemon training the submissions of one RAMP event.
//
//	Supported commands: (see "-h" for all options)
//		dispatcher [--n-worker N] [--hunger-policy sleep|exit] [--http-addr ADDR]
//		recover
//		abort --submission NAME --node ID
//	Global flags:
//		--config [path to the YAML configuration]
//		--worker [<local|aws> overrides the configured worker type]
//		--log-level [<error|info|debug>], -v
func main() {
	if err := cli.NewRampCLI().Exec(); err != nil {
		log.Fatal("Error running rampd: ", err)
	}
}
