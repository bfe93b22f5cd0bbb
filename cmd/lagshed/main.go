// Command lagshed runs a lag-shedding demo server or a local stress run.
//
//	lagshed serve --addr :8080 --threshold 50
//	lagshed stress --workers 64 --work 5ms --duration 10s
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
