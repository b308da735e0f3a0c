package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/udo/internal/ctxlog"
	"github.com/vk/udo/internal/fsutil"
	"github.com/vk/udo/internal/udo"
)

// ManifestFile is the file name used for directory-style operations.
const ManifestFile = "manifest.hcl"

// Resolve returns the handle for the operation called name under
// functionsPath. The error is always a *udo.Error of kind OperationNotFound
// or OperationLoadError.
func (r *Registry) Resolve(ctx context.Context, name, functionsPath string) (*Handle, error) {
	logger := ctxlog.FromContext(ctx).With("operation", name, "functions_path", functionsPath)

	if !validName(name) {
		return nil, &udo.Error{Kind: udo.KindOperationNotFound, Op: name, Message: "invalid operation name"}
	}
	root, err := filepath.Abs(functionsPath)
	if err != nil {
		return nil, &udo.Error{Kind: udo.KindOperationNotFound, Op: name, Path: functionsPath, Err: err}
	}
	key := cacheKey{name: name, functionsPath: root}

	r.mu.RLock()
	h, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		logger.Debug("Resolved operation from cache.")
		return h, nil
	}

	v, err, shared := r.group.Do(key.name+"\x00"+key.functionsPath, func() (any, error) {
		h, err := r.load(ctx, name, root)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[key] = h
		r.mu.Unlock()
		return h, nil
	})
	if err != nil {
		logger.Debug("Operation resolve failed.", "error", err, "shared", shared)
		return nil, err
	}
	logger.Debug("Resolved operation.", "entrypoint", v.(*Handle).Descriptor.Entrypoint, "shared", shared)
	return v.(*Handle), nil
}

// load reads and validates one operation. It is never cached on failure.
func (r *Registry) load(ctx context.Context, name, root string) (*Handle, error) {
	manifest, ok := findManifest(root, name)
	if !ok {
		return nil, &udo.Error{
			Kind:    udo.KindOperationNotFound,
			Op:      name,
			Path:    root,
			Message: fmt.Sprintf("no %s.hcl or %s/%s", name, name, ManifestFile),
		}
	}
	loadErr := func(err error) error {
		return &udo.Error{Kind: udo.KindOperationLoadError, Op: name, Path: manifest, Err: err}
	}

	def, err := r.loader.LoadOperation(ctx, manifest, name)
	if err != nil {
		return nil, loadErr(err)
	}
	ep, ok := r.entrypoint(def.Entrypoint)
	if !ok {
		return nil, loadErr(fmt.Errorf("unknown entrypoint '%s'", def.Entrypoint))
	}
	if ep.Modality != def.Modality {
		return nil, loadErr(fmt.Errorf("manifest declares modality '%s' but entrypoint '%s' handles '%s'", def.Modality, def.Entrypoint, ep.Modality))
	}
	if err := validateParity(ctx, def, ep); err != nil {
		return nil, loadErr(err)
	}

	return &Handle{
		Descriptor: udo.Descriptor{
			Name:          def.Name,
			Entrypoint:    def.Entrypoint,
			Modality:      def.Modality,
			Description:   def.Description,
			FunctionsPath: root,
			ManifestPath:  manifest,
		},
		Module:    ep.Module,
		Settings:  def.Settings,
		Params:    def.Params,
		entry:     ep,
		converter: r.converter,
	}, nil
}

func findManifest(root, name string) (string, bool) {
	for _, candidate := range []string{
		filepath.Join(root, name+".hcl"),
		filepath.Join(root, name, ManifestFile),
	} {
		if fsutil.FileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// validName rejects names that could escape the functions path.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

// List resolves every operation found under functionsPath. Manifests that
// fail to load are reported in the error slice; the descriptors of the rest
// are returned sorted by name.
func (r *Registry) List(ctx context.Context, functionsPath string) ([]udo.Descriptor, []error) {
	root, err := filepath.Abs(functionsPath)
	if err != nil {
		return nil, []error{err}
	}
	files, err := fsutil.FindFilesByExtension(root, ".hcl")
	if err != nil {
		return nil, []error{fmt.Errorf("scan %s: %w", root, err)}
	}

	seen := make(map[string]struct{})
	var names []string
	for _, f := range files {
		name, ok := operationNameFor(root, f)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		descs []udo.Descriptor
		errs  []error
	)
	for _, name := range names {
		h, err := r.Resolve(ctx, name, root)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		descs = append(descs, h.Descriptor)
	}
	return descs, errs
}

// operationNameFor maps a manifest file to the operation name Resolve would
// look it up by. Other .hcl files under the path are ignored.
func operationNameFor(root, file string) (string, bool) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) == 1:
		return strings.TrimSuffix(parts[0], ".hcl"), true
	case len(parts) == 2 && parts[1] == ManifestFile:
		return parts[0], true
	}
	return "", false
}
