// Command dex-gateway runs the sharded gateway client and mirrors its
// events into Redis.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
