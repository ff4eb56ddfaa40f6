package filetree

import (
	"path"
	"strings"
)

// JoinPath constructs a child path from parent + name.
func JoinPath(prefix, name string) string {
	if prefix == "" || prefix == "/" {
		return "/" + name
	}
	return prefix + "/" + name
}

// LastSegment returns the final element of a slash-delimited path.
func LastSegment(p string) string {
	p = strings.TrimRight(p, "/")
	return p[strings.LastIndexByte(p, '/')+1:]
}

// Clean normalizes p to an absolute, slash-rooted path without a trailing slash.
func Clean(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}
