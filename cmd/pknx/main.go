// pknx is a KNXnet/IP tunneling client: a CLI for reading, writing,
// and monitoring KNX group addresses through an IP gateway, and a
// daemon bridging the bus to MQTT.
package main

import (
	"fmt"
	"os"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var version = "dev"

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
