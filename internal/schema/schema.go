package schema

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// --- Operation Manifest Schemas ---

// InputDefinition declares one setting or input parameter of an operation.
type InputDefinition struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,optional"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
}

// OperationDefinition represents an `operation` block in a manifest file.
type OperationDefinition struct {
	Name        string             `hcl:"name,label"`
	Description string             `hcl:"description,optional"`
	Modality    string             `hcl:"modality"`
	Entrypoint  string             `hcl:"entrypoint"`
	Settings    []*InputDefinition `hcl:"setting,block"`
	Params      []*InputDefinition `hcl:"param,block"`
}

// ManifestFile represents the top-level structure of a manifest file.
type ManifestFile struct {
	Operations []*OperationDefinition `hcl:"operation,block"`
	Body       hcl.Body               `hcl:",remain"`
}

// --- Runtime Config Schemas ---

// AliasBlock maps a caller-facing id to an operation name.
type AliasBlock struct {
	ID        string `hcl:"id,label"`
	Operation string `hcl:"operation"`
}

// DefaultsBlock carries static settings applied to every invocation of one
// operation.
type DefaultsBlock struct {
	Operation string    `hcl:"operation,label"`
	Settings  cty.Value `hcl:"settings,optional"`
	Params    cty.Value `hcl:"params,optional"`
}

// RuntimeFile represents the top-level structure of a udo.hcl config file.
type RuntimeFile struct {
	FunctionsPath *string          `hcl:"functions_path,optional"`
	ScratchRoot   *string          `hcl:"scratch_root,optional"`
	Workers       *int             `hcl:"workers,optional"`
	LogLevel      *string          `hcl:"log_level,optional"`
	LogFormat     *string          `hcl:"log_format,optional"`
	Aliases       []*AliasBlock    `hcl:"alias,block"`
	Defaults      []*DefaultsBlock `hcl:"defaults,block"`
	Body          hcl.Body         `hcl:",remain"`
}
