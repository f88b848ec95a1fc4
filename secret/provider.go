package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound indicates a provider has no secret under the reference.
	ErrNotFound = errors.New("secret: not found")

	// ErrProviderNotRegistered indicates a reference names an unknown provider.
	ErrProviderNotRegistered = errors.New("secret: provider not registered")

	// ErrEmptySecret indicates a strict resolver received an empty value.
	ErrEmptySecret = errors.New("secret: empty value")

	// ErrMissingEnv indicates ${VAR} expansion found an unset variable.
	ErrMissingEnv = errors.New("secret: missing environment variables")
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	// Prefix is prepended to every reference.
	Prefix string
}

func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the variable named Prefix+ref.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(p.Prefix + ref)
	if !ok {
		return "", fmt.Errorf("%w: env %s%s", ErrNotFound, p.Prefix, ref)
	}
	return v, nil
}

func (p *EnvProvider) Close() error { return nil }

// FileProvider reads secrets from files, as mounted by container runtimes.
type FileProvider struct {
	// Dir anchors relative references. Absolute references must stay in Dir
	// when Dir is set.
	Dir string
}

func (p *FileProvider) Name() string { return "file" }

// Resolve returns the file's contents with one trailing newline removed.
func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	path := ref
	if p.Dir != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.Dir, path)
		}
		rel, err := filepath.Rel(p.Dir, filepath.Clean(path))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("secret: file %q is outside %q", ref, p.Dir)
		}
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: file %s", ErrNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("secret: read %s: %w", ref, err)
	}
	s := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

func (p *FileProvider) Close() error { return nil }

var (
	_ Provider = (*EnvProvider)(nil)
	_ Provider = (*FileProvider)(nil)
)
