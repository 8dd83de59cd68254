// Package main provides the entry point for the perf-gate CLI.
package main

import "yqhp/perf-gate/cmd"

func main() {
	cmd.Execute()
}
