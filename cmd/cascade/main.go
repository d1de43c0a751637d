// Package main is the entrypoint for cascade, a task dependency graph
// and schedule propagation engine.
package main

import "github.com/tutu-network/cascade/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
