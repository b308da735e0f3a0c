// Package dispatch runs operations on behalf of a caller.
//
// A Dispatcher resolves the operation through the registry, builds a fresh
// Invocation, calls the module exactly once and turns whatever happens into a
// well-formed udo.Result: a module panic, an unstructured error or an empty
// output all become OperationCrashed. Scratch files allocated for an
// invocation are released when it ends, except the one returned as output.
package dispatch
