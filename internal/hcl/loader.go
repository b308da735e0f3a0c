package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/udo/internal/config"
	"github.com/vk/udo/internal/ctxlog"
	"github.com/vk/udo/internal/schema"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// LoadOperation parses the manifest at path and translates the `operation`
// block labelled name.
func (l *Loader) LoadOperation(ctx context.Context, path, name string) (*config.OperationDefinition, error) {
	logger := ctxlog.FromContext(ctx).With("manifest", path, "operation", name)
	logger.Debug("Loading operation manifest.")

	var root schema.ManifestFile
	if err := decodeFile(path, &root); err != nil {
		return nil, err
	}

	var found *schema.OperationDefinition
	for _, op := range root.Operations {
		if op.Name != name {
			logger.Debug("Skipping operation block with a different name.", "found", op.Name)
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%s: operation '%s' is declared more than once", path, name)
		}
		found = op
	}
	if found == nil {
		return nil, fmt.Errorf("%s: no operation block named '%s'", path, name)
	}

	def, err := translateOperation(ctx, found, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("Operation manifest loaded.", "entrypoint", def.Entrypoint, "settings", len(def.Settings), "params", len(def.Params))
	return def, nil
}

// LoadRuntime parses a udo.hcl runtime config file.
func (l *Loader) LoadRuntime(ctx context.Context, path string) (*config.Runtime, error) {
	ctxlog.FromContext(ctx).Debug("Loading runtime config.", "path", path)

	var root schema.RuntimeFile
	if err := decodeFile(path, &root); err != nil {
		return nil, err
	}
	rt, err := translateRuntime(&root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rt, nil
}

// decodeFile parses one HCL file and decodes it into target. A fresh parser
// is used per call so edits to a file are seen on the next load.
func decodeFile(path string, target any) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	if diags := gohcl.DecodeBody(file.Body, nil, target); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return nil
}
