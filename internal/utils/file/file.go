package file

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IsSubPath checks if the target path is a subpath of the base path
func IsSubPath(base, target string) (bool, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false, err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return false, err
	}
	// rel == "." means same dir, a leading ".." element means not subpath
	if rel == "." {
		return true, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return false, nil
	}
	return true, nil
}

// JoinWithin joins name onto dir and fails unless the result names an
// entry strictly inside dir.
func JoinWithin(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	joined := filepath.Join(dir, name)
	if filepath.Clean(joined) == filepath.Clean(dir) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	ok, err := IsSubPath(dir, joined)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("file name %q escapes %s", name, dir)
	}
	return joined, nil
}
