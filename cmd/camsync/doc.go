// Package main hosts the camsync CLI entrypoint and command graph.
//
// The Cobra command tree maps terminal invocations onto the internal
// pipeline: building timecode indexes, synchronizing cameras against a
// reference, extracting matched frames and inspecting manifests and the run
// ledger. Configuration resolution, logger setup and ledger access are
// centralized in commandContext so subcommands only format output.
//
// SIGINT and SIGTERM cancel the command context. Long-running stages stop
// between work units and checkpoint what they finished.
package main
