// Package hcl provides the HCL implementation of the config.Loader and
// config.Converter interfaces. It parses operation manifests and the runtime
// config file, translates them into the config model, and binds caller values
// onto typed Go structs through cty.
package hcl
