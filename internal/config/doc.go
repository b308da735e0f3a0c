// Package config defines the format-agnostic model of operation manifests and
// of the runtime configuration file, along with the interfaces (Loader,
// Converter) that read them and bind caller values onto Go structs.
//
// The registry and the dispatcher only ever see this model. The HCL
// implementation lives in the hcl package.
package config
