// Command svsuper supervises one service directory: a MAIN process
// and, if present, a LOG process, carried through a start/reset
// lifecycle and controllable over a binary request/reply protocol.
//
// Usage:
//
//	svsuper [-v] [-o] [-config file] svdir
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cfoster/svsuper/internal/config"
	"github.com/cfoster/svsuper/internal/supervisor"
)

const version = "1.0.0"

func init() {
	log.SetFlags(log.Ltime)
	log.SetPrefix("svsuper: ")
}

func main() {
	verbose := flag.Bool("v", false, "verbose (debug/trace) logging")
	once := flag.Bool("o", false, "run main service once at boot, matching flag.once")
	showVersion := flag.Bool("V", false, "print version and exit")
	configPath := flag.String("config", "", "optional YAML tuning file overriding respawn/backoff/verbosity defaults")
	flag.Parse()

	if *showVersion {
		fmt.Println("svsuper " + version)
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: svsuper [-v] [-o] [-config file] svdir")
		os.Exit(100)
	}
	svdir := flag.Arg(0)

	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if *verbose {
		cfg.Verbose = true
	}

	sv, err := supervisor.New(svdir, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *once {
		sv.ForceOnce()
	}

	if err := sv.Setup(); err != nil {
		var ec *supervisor.ExitCodeError
		if errors.As(err, &ec) {
			log.Printf("%v", ec)
			os.Exit(ec.Code)
		}
		log.Printf("%v", err)
		os.Exit(100)
	}

	if err := sv.Run(); err != nil {
		log.Fatalf("%v", err)
	}
}
