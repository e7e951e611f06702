package hdf5

import (
	"errors"
	"path"
)

// WalkFunc is called for each object during traversal.
// path is the full path to the object.
// obj is either *Group or *Dataset.
// err is any error encountered opening the object.
// Return nil to continue walking, or an error to stop.
type WalkFunc func(path string, obj any, err error) error

// ErrStopWalk can be returned from a callback to stop walking without an error.
var ErrStopWalk = errors.New("walk stopped")

// Walk traverses all objects (groups and datasets) in the hierarchy starting
// from g, depth first, visiting each group before its members. Returning
// ErrStopWalk from fn ends the walk and Walk returns nil.
func Walk(g *Group, fn WalkFunc) error {
	if err := walkGroup(g, fn); err != nil && !errors.Is(err, ErrStopWalk) {
		return err
	}
	return nil
}

func walkGroup(g *Group, fn WalkFunc) error {
	if err := fn(g.Path(), g, nil); err != nil {
		return err
	}

	members, err := g.Members()
	if err != nil {
		return err
	}

	for _, name := range members {
		childPath := path.Join(g.Path(), name)

		obj, err := g.open(name)
		if child, ok := obj.(*Group); ok && err == nil {
			if err := walkGroup(child, fn); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			obj = nil
		}
		if err := fn(childPath, obj, err); err != nil {
			return err
		}
	}

	return nil
}

// AttrInfo contains information about an attribute during walking.
type AttrInfo struct {
	// Path is the full attribute path (e.g., "/group/dataset@attr")
	Path string

	// ObjectPath is the path to the object containing this attribute
	ObjectPath string

	// ObjectType is "group" or "dataset"
	ObjectType string

	// Name is the attribute name
	Name string

	// Attr provides access to the full attribute for detailed reading
	Attr *Attribute
}

// WalkAttrsFunc is the callback function type for WalkAttrs.
type WalkAttrsFunc func(info AttrInfo) error

// WalkAttrs visits every attribute on every group and dataset in the file.
// Objects that cannot be opened are skipped.
func (f *File) WalkAttrs(fn WalkAttrsFunc) error {
	if f.closed {
		return ErrClosed
	}

	return Walk(f.root, func(p string, obj any, err error) error {
		if err != nil {
			return nil
		}

		var (
			kind  string
			names []string
			get   func(string) *Attribute
		)
		switch o := obj.(type) {
		case *Group:
			kind, names, get = "group", o.Attrs(), o.Attr
		case *Dataset:
			kind, names, get = "dataset", o.Attrs(), o.Attr
		default:
			return nil
		}

		for _, name := range names {
			info := AttrInfo{
				Path:       JoinAttrPath(p, name),
				ObjectPath: p,
				ObjectType: kind,
				Name:       name,
				Attr:       get(name),
			}
			if err := fn(info); err != nil {
				return err
			}
		}
		return nil
	})
}
