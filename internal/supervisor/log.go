package supervisor

import "log"

// verbose gates debug/trace-level lines, set from Config.Verbose or
// the -v flag. Warnings and info lines always print.
var verbose = false

func setVerbose(v bool) { verbose = v }

func logInfo(format string, args ...any) {
	log.Printf("info: "+format, args...)
}

func logWarning(format string, args ...any) {
	log.Printf("warning: "+format, args...)
}

func logDebug(format string, args ...any) {
	if verbose {
		log.Printf("debug: "+format, args...)
	}
}

func logTrace(format string, args ...any) {
	if verbose {
		log.Printf("trace: "+format, args...)
	}
}
