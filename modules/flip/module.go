// Package flip implements the "flip" operation: mirror an image vertically.
package flip

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/vk/udo/internal/ctxlog"
	"github.com/vk/udo/internal/fsutil"
	"github.com/vk/udo/internal/media"
	"github.com/vk/udo/internal/registry"
	"github.com/vk/udo/internal/udo"
)

// Entrypoint is the name manifests use to bind to this module.
const Entrypoint = "flip"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Settings are the static options of the flip operation.
type Settings struct {
	// Opfile is the output path prefix. Empty writes into the scratch root.
	Opfile string `udo:"opfile"`
	// Format converts the output to another image format. Empty keeps the
	// input's format.
	Format  string `udo:"format"`
	Quality int    `udo:"quality"`
}

// Run flips the image referenced by the invocation message.
func Run(ctx context.Context, inv *udo.Invocation) (*udo.Artifact, error) {
	s, err := udo.SettingsOf[Settings](inv)
	if err != nil {
		return nil, err
	}
	if inv.Message.IsPath() {
		return flipFile(ctx, inv, s)
	}
	return flipBlob(ctx, inv, s)
}

func flipFile(ctx context.Context, inv *udo.Invocation, s *Settings) (*udo.Artifact, error) {
	in := inv.Message.Path
	logger := ctxlog.FromContext(ctx).With("input", in)

	if !fsutil.FileExists(in) {
		return nil, udo.NewError(udo.KindInputNotFound, in, "input does not exist")
	}
	inFormat, err := media.FormatFromPath(in)
	if err != nil || inFormat.Modality != udo.ModalityImage {
		return nil, udo.NewError(udo.KindUnsupportedFormat, in, "not an image format")
	}
	ext, err := outputFormat(inFormat.Ext, s.Format)
	if err != nil {
		return nil, err
	}

	out, err := inv.OutputPath(s.Opfile, ext)
	if err != nil {
		return nil, err
	}

	img, err := media.DecodeImageFile(in)
	if err != nil {
		return nil, udo.WrapError(udo.KindDecodeFailure, in, err)
	}
	logger.Debug("Decoded input image.", "bounds", img.Bounds().String(), "output", out)

	if err := media.EncodeImageFile(out, media.FlipVertical(img), ext, s.Quality); err != nil {
		_ = os.Remove(out)
		return nil, fmt.Errorf("write %s: %w", out, err)
	}
	return &udo.Artifact{Path: out, Format: ext}, nil
}

func flipBlob(ctx context.Context, inv *udo.Invocation, s *Settings) (*udo.Artifact, error) {
	sniffed, err := media.SniffImage(inv.Message.Data)
	if err != nil {
		return nil, udo.WrapError(udo.KindUnsupportedFormat, "", err)
	}
	ext, err := outputFormat(sniffed, s.Format)
	if err != nil {
		return nil, err
	}

	img, _, err := media.DecodeImage(bytes.NewReader(inv.Message.Data))
	if err != nil {
		return nil, udo.WrapError(udo.KindDecodeFailure, "", err)
	}
	ctxlog.FromContext(ctx).Debug("Decoded input blob.", "format", sniffed, "bounds", img.Bounds().String())

	var buf bytes.Buffer
	if err := media.EncodeImage(&buf, media.FlipVertical(img), ext, s.Quality); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ext, err)
	}
	return &udo.Artifact{Data: buf.Bytes(), Format: ext}, nil
}

// outputFormat picks the output extension: the explicit override when set,
// otherwise the input's own format.
func outputFormat(inExt, override string) (string, error) {
	want := inExt
	if override != "" {
		want = override
	}
	f, err := media.LookupFormat(want)
	if err != nil || f.Modality != udo.ModalityImage {
		return "", udo.NewError(udo.KindUnsupportedFormat, "", "unknown image format %q", want)
	}
	if !f.CanEncode {
		return "", udo.NewError(udo.KindUnsupportedFormat, "", "cannot write %s images; set the format setting to convert", f.Ext)
	}
	return f.Ext, nil
}

// Register registers the entrypoint with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterEntrypoint(Entrypoint, &registry.Entrypoint{
		Module:      udo.ModuleFunc(Run),
		Modality:    udo.ModalityImage,
		NewSettings: func() any { return new(Settings) },
	})
}
