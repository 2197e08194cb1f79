package unistore

import "strings"

// Path rules, shared by the Operator and all backends:
//
//   - Paths are "/"-separated and relative to the backend root.
//   - A path ending with "/" names a directory; anything else names a file.
//   - "/" names the root directory.

// NormalizePath collapses repeated separators and "." segments, strips any
// leading "/", and preserves the trailing "/" that marks a directory. The
// empty path and "/" both normalize to "/".
func NormalizePath(p string) string {
	isDir := p == "" || strings.HasSuffix(p, "/")

	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s == "" || s == "." {
			continue
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return "/"
	}

	out := strings.Join(segs, "/")
	if isDir {
		out += "/"
	}
	return out
}

// cleanAnyPath normalizes p for operations that accept both file and
// directory paths, rejecting ".." segments that would escape the backend
// root.
func cleanAnyPath(op, p string) (string, error) {
	for _, s := range strings.Split(p, "/") {
		if s == ".." {
			return "", Errorf(KindConfigInvalid, op, p, "path must not contain ..")
		}
	}
	return NormalizePath(p), nil
}

// validatePath normalizes p and checks it fits the operation: directory
// operations require a trailing "/", file operations reject one.
func validatePath(op, p string, wantDir bool) (string, error) {
	p, err := cleanAnyPath(op, p)
	if err != nil {
		return "", err
	}
	isDir := strings.HasSuffix(p, "/")

	if wantDir && !isDir {
		return "", NewError(KindNotADirectory, op, p, "directory path must end with /")
	}
	if !wantDir && isDir {
		return "", NewError(KindIsADirectory, op, p, "file path must not end with /")
	}
	return p, nil
}
