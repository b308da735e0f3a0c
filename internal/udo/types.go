package udo

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Modality is the artifact kind an operation accepts.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
)

// ParseModality validates a modality name from a manifest.
func ParseModality(s string) (Modality, error) {
	switch m := Modality(strings.ToLower(strings.TrimSpace(s))); m {
	case ModalityImage, ModalityVideo:
		return m, nil
	}
	return "", fmt.Errorf("unknown modality %q (want %q or %q)", s, ModalityImage, ModalityVideo)
}

// Descriptor identifies a resolved operation. It is immutable once built by
// the registry.
type Descriptor struct {
	Name          string
	Entrypoint    string
	Modality      Modality
	Description   string
	FunctionsPath string
	ManifestPath  string
}

// Message is the input artifact handed to an operation: either a filesystem
// path or an in-memory blob, never both.
type Message struct {
	Path string
	Data []byte
}

// PathMessage references an artifact on disk.
func PathMessage(path string) Message { return Message{Path: path} }

// BlobMessage carries an in-memory artifact.
func BlobMessage(data []byte) Message { return Message{Data: data} }

// IsPath reports whether the message references a file.
func (m Message) IsPath() bool { return m.Path != "" }

// Validate checks that exactly one of path or data is set.
func (m Message) Validate() error {
	switch {
	case m.Path != "" && m.Data != nil:
		return errors.New("message carries both a path and in-memory data")
	case m.Path == "" && len(m.Data) == 0:
		return errors.New("message is empty")
	}
	return nil
}

// String returns a short description suitable for logs.
func (m Message) String() string {
	if m.IsPath() {
		return m.Path
	}
	return fmt.Sprintf("<blob %d bytes>", len(m.Data))
}

// Artifact is a produced output: a file path or in-memory bytes.
type Artifact struct {
	Path   string
	Data   []byte
	Format string
}

// Empty reports whether the artifact references nothing.
func (a *Artifact) Empty() bool {
	return a == nil || (a.Path == "" && len(a.Data) == 0)
}

// String describes the artifact for logs without dumping blob contents.
func (a *Artifact) String() string {
	if a == nil {
		return "<none>"
	}
	if a.Path != "" {
		return a.Path
	}
	return fmt.Sprintf("<%d bytes %s>", len(a.Data), a.Format)
}

// Result is what a caller receives for one invocation. Exactly one of Output
// and Err is set.
type Result struct {
	Output *Artifact
	Err    *Error
}

// Succeeded builds a successful result.
func Succeeded(a *Artifact) Result {
	if a.Empty() {
		panic("udo: successful result requires a non-empty artifact")
	}
	return Result{Output: a}
}

// Failed builds a failed result.
func Failed(err *Error) Result {
	if err == nil {
		panic("udo: failed result requires an error")
	}
	return Result{Err: err}
}

// OK reports whether the invocation produced an output.
func (r Result) OK() bool { return r.Err == nil && r.Output != nil }

// Scratch allocates collision-free paths under the invocation's scratch root.
// Paths allocated through it that the operation does not return are released
// once the invocation ends.
type Scratch interface {
	Allocate(ext string) (string, error)
	Release(path string)
}

// Invocation is the per-call context handed to an operation. Settings and
// Params hold pointers to the operation's own config structs, decoded fresh
// for this invocation; operations must treat them as read-only.
type Invocation struct {
	// ID is unique per invocation and safe to embed in derived file names.
	ID            string
	Operation     Descriptor
	Settings      any
	Params        any
	Message       Message
	TmpDirPath    string
	FunctionsPath string
	Scratch       Scratch
}

// Module is the contract every operation implements.
type Module interface {
	Run(ctx context.Context, inv *Invocation) (*Artifact, error)
}

// ModuleFunc adapts a plain function to Module.
type ModuleFunc func(ctx context.Context, inv *Invocation) (*Artifact, error)

// Run calls f.
func (f ModuleFunc) Run(ctx context.Context, inv *Invocation) (*Artifact, error) {
	return f(ctx, inv)
}

// SettingsOf returns the invocation settings as *T.
func SettingsOf[T any](inv *Invocation) (*T, error) {
	s, ok := inv.Settings.(*T)
	if !ok || s == nil {
		return nil, fmt.Errorf("invocation settings have type %T, want %T", inv.Settings, (*T)(nil))
	}
	return s, nil
}

// ParamsOf returns the invocation params as *T.
func ParamsOf[T any](inv *Invocation) (*T, error) {
	p, ok := inv.Params.(*T)
	if !ok || p == nil {
		return nil, fmt.Errorf("invocation params have type %T, want %T", inv.Params, (*T)(nil))
	}
	return p, nil
}
