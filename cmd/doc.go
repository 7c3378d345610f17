// Package cmd implements the command-line interface of segkv.
//
// The package is organized into several subpackages:
//
//   - serve: starts the HTTP API on a segment engine
//   - perf: in-process throughput benchmarks of the map and its baselines
//   - util: shared flag, environment and logging setup (internal use)
//
// Every flag can also be set through an environment variable named
// SEGKV_<FLAG> with dashes replaced by underscores, optionally loaded from
// .env or .env.local. See segkv --help for a list of all commands.
package cmd
