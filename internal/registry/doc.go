// Package registry maps operation names to invocable handles.
//
// An operation exists under a functions path when a manifest declares it,
// either as <path>/<name>.hcl or as <path>/<name>/manifest.hcl. The manifest
// names a compiled-in entrypoint; entrypoints are registered once at startup
// by the modules packages. Resolving checks that the manifest and the Go
// config structs of the entrypoint are in sync, so a drifted manifest fails
// at resolve time with OperationLoadError instead of during a run.
//
// Successful resolutions are cached per (name, functions path) for the life
// of the process. Failures are not cached, so a manifest added or fixed after
// a failed resolve is picked up by the next call.
package registry
