// Command fieldctl encrypts and decrypts protected field values and simulates
// rate limit checks from the command line.
//
//	echo '{"role":"athlete"}' | fieldctl encrypt
//	fieldctl decrypt <blob>
//	fieldctl check -key login:coach@example.com -n 7
package main

import (
	"os"

	"github.com/welldanyogia/fieldguard/internal/config"
	"github.com/welldanyogia/fieldguard/internal/logger"
)

func main() {
	cfg := config.Load()

	logCfg := logger.DefaultConfig()
	logCfg.Output = "stderr"
	log := logger.New(logCfg)

	cli := &CLI{
		Config: cfg,
		Logger: log,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	os.Exit(cli.Run(os.Args[1:]))
}
