package hdf5

import (
	"fmt"
	"strings"
)

// attrSep separates an object path from an attribute name, as in
// "/Header@BoxSize".
const attrSep = "@"

// splitPath returns the link names along path. Empty and "." components
// are dropped, so "Gas/./Masses/" and "/Gas//Masses" name the same object.
func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

// cleanPath returns the absolute form of path that Group and Dataset
// report from Path.
func cleanPath(path string) string {
	return "/" + strings.Join(splitPath(path), "/")
}

// ParseAttrPath splits an attribute path of the form object@name. The
// object part is relative to the root group and may be empty for a root
// attribute. The last "@" separates the name, so object names may contain
// one.
func ParseAttrPath(path string) (objectPath, attrName string, err error) {
	i := strings.LastIndex(path, attrSep)
	if i < 0 {
		return "", "", fmt.Errorf("%w: no %q in attribute path %q", ErrInvalidPath, attrSep, path)
	}
	if attrName = path[i+1:]; attrName == "" {
		return "", "", fmt.Errorf("%w: empty attribute name in %q", ErrInvalidPath, path)
	}
	return cleanPath(path[:i]), attrName, nil
}

// JoinAttrPath is the inverse of ParseAttrPath for a clean object path.
func JoinAttrPath(objectPath, attrName string) string {
	if objectPath == "/" {
		return "/" + attrSep + attrName
	}
	return objectPath + attrSep + attrName
}
