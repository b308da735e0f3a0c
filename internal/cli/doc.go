// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It builds
// the cobra command tree and reads global settings through viper, so every
// global flag can also be set from a UDO_ environment variable.
package cli
