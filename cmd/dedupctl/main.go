// Command dedupctl hosts the control-plane HTTP API and operator
// subcommands (serve, migrate, recover-stale) for the deduplication
// pipeline.
package main

import "os"

func main() {
	if err := Execute(os.Args[1:]...); err != nil {
		os.Exit(1) //revive:disable-line:deep-exit
	}
}
