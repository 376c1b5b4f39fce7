// Package golly is the root of the lsh job daemon: a scheduler/executor for cron and
// interval jobs, fronted by a Unix-domain IPC socket and an optional HTTP
// control API, plus a content-addressed secret-sync engine for
// encrypting and publishing per-environment secret bundles.
//
// The daemon (cmd/lshd) and CLI (cmd/lsh) are built on a set of reusable
// internal packages covering storage, registry/scheduling, execution,
// IPC, the HTTP control API, secret encryption, and sync:
//
//	import "github.com/gwicho38/lsh-sub006/internal/storage"    // pluggable persistence backends
//	import "github.com/gwicho38/lsh-sub006/internal/registry"   // job registry and due-event publishing
//	import "github.com/gwicho38/lsh-sub006/internal/scheduler"  // cron/interval due-time computation
//	import "github.com/gwicho38/lsh-sub006/internal/executor"   // process execution with retry
//	import "github.com/gwicho38/lsh-sub006/internal/ipc"        // daemon control-plane socket
//	import "github.com/gwicho38/lsh-sub006/internal/syncengine" // content-addressed secret sync
//
// It also carries the ambient stack those packages are built on: logging
// (l3), configuration (config), CLI argument parsing (cli), lifecycle
// ordering (lifecycle), and codec-based serialization (codec).
package golly
