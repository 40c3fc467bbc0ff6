// Package pathsafe implements the path-traversal and expansion guards every
// operation touching a library-relative or thumbnail-relative path must
// pass through before the path is joined onto a trusted root.
package pathsafe

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for any path that fails validation or that
// resolves outside its configured root.
var ErrUnsafePath = errors.New("unsafe path")

// ValidateLibraryRelativePath rejects absolute paths, any ".." component,
// and any occurrence of "~" or "$" (home/env expansion markers).
func ValidateLibraryRelativePath(raw string) error {
	if raw == "" {
		return ErrUnsafePath
	}

	if filepath.IsAbs(raw) || strings.HasPrefix(raw, "/") {
		return ErrUnsafePath
	}

	if strings.Contains(raw, "~") || strings.Contains(raw, "$") {
		return ErrUnsafePath
	}

	cleaned := filepath.ToSlash(raw)
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return ErrUnsafePath
		}
	}

	return nil
}

// ResolveUnderRoot resolves root/raw without requiring the result to
// exist, and rejects the result unless it is root itself or a descendant
// of it. raw is not required to have already passed
// ValidateLibraryRelativePath — callers needing both validations should
// call ValidateLibraryRelativePath first.
func ResolveUnderRoot(root, raw string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absRoot = filepath.Clean(absRoot)

	candidate := filepath.Clean(filepath.Join(absRoot, raw))

	if candidate != absRoot && !strings.HasPrefix(candidate, absRoot+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}

	return candidate, nil
}

// ResolveLibraryRelativePath validates raw and resolves it under root in
// one call — the common case used when requesting a thumbnail, checking a
// LibraryFile's relative_path against its LibraryRoot.
func ResolveLibraryRelativePath(root, raw string) (string, error) {
	if err := ValidateLibraryRelativePath(raw); err != nil {
		return "", err
	}
	return ResolveUnderRoot(root, raw)
}
