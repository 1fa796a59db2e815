// Command mlpipe trains, gates and registers candidate models and submits
// the pipeline to the configured platform.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
