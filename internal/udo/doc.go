// Package udo defines the user-defined operation calling convention shared by
// the registry, the dispatcher, and every operation module.
//
// An operation is invoked with an Invocation (settings, message, params,
// scratch root and functions path) and produces either an Artifact or a
// structured *Error. The dispatcher folds that pair into a Result, which
// always carries exactly one of the two.
package udo
