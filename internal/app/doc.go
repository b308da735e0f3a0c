// Package app contains the core application logic. It defines the main App
// struct, its configuration, and how the registry, scratch manager and
// dispatcher are wired together, decoupled from any specific entrypoint like
// a CLI.
package app
