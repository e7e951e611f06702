package hdf5

import (
	"fmt"
	"path"
	"sort"

	"github.com/robert-malhotra/swiftserve/internal/btree"
	"github.com/robert-malhotra/swiftserve/internal/heap"
	"github.com/robert-malhotra/swiftserve/internal/message"
	"github.com/robert-malhotra/swiftserve/internal/object"
)

// Group represents an HDF5 group.
type Group struct {
	file   *File
	path   string
	header *object.Header

	links []message.Link // loaded on first use
}

// Name returns the group name (last component of path).
func (g *Group) Name() string {
	if g.path == "/" {
		return "/"
	}
	return path.Base(g.path)
}

// Path returns the full path to this group.
func (g *Group) Path() string {
	return g.path
}

// OpenGroup opens a subgroup by relative path.
func (g *Group) OpenGroup(relativePath string) (*Group, error) {
	obj, err := g.open(relativePath)
	if err != nil {
		return nil, err
	}
	group, ok := obj.(*Group)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotGroup, relativePath)
	}
	return group, nil
}

// OpenDataset opens a dataset by relative path.
func (g *Group) OpenDataset(relativePath string) (*Dataset, error) {
	obj, err := g.open(relativePath)
	if err != nil {
		return nil, err
	}
	dataset, ok := obj.(*Dataset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDataset, relativePath)
	}
	return dataset, nil
}

// open opens the group or dataset at a path relative to g.
func (g *Group) open(relativePath string) (any, error) {
	if g.file.closed {
		return nil, ErrClosed
	}
	parts := splitPath(relativePath)
	current := g
	for i, name := range parts {
		addr, err := current.lookup(name, 0)
		if err != nil {
			return nil, err
		}
		fullPath := path.Join(current.path, name)
		obj, err := g.file.openAt(addr, fullPath)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", fullPath, err)
		}
		if i == len(parts)-1 {
			return obj, nil
		}
		next, ok := obj.(*Group)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotGroup, fullPath)
		}
		current = next
	}
	return current, nil
}

// lookup returns the object header address of the member name, following
// soft links. depth counts the soft links already followed.
func (g *Group) lookup(name string, depth int) (uint64, error) {
	links, err := g.loadLinks()
	if err != nil {
		return 0, err
	}
	i := sort.Search(len(links), func(i int) bool { return links[i].Name >= name })
	if i == len(links) || links[i].Name != name {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, path.Join(g.path, name))
	}

	link := links[i]
	switch link.LinkType {
	case message.LinkHard:
		return link.ObjectAddress, nil
	case message.LinkSoft:
		if depth >= MaxLinkDepth {
			return 0, fmt.Errorf("%w: %s", ErrLinkDepth, path.Join(g.path, name))
		}
		target := link.SoftLinkValue
		if !path.IsAbs(target) {
			target = path.Join(g.path, target)
		}
		return g.file.resolve(target, depth+1)
	default:
		return 0, fmt.Errorf("%w: link type %d at %s", ErrUnsupported, link.LinkType, path.Join(g.path, name))
	}
}

// loadLinks reads the group's members, sorted by name. Members come from
// link messages in the header or, in older files, from a symbol table.
func (g *Group) loadLinks() ([]message.Link, error) {
	if g.links != nil {
		return g.links, nil
	}

	var links []message.Link
	if info := g.header.LinkInfo(); info != nil && info.Dense(g.file.reader.OffsetSize()) {
		return nil, fmt.Errorf("%w: dense link storage in %s", ErrUnsupported, g.path)
	}
	for _, l := range g.header.Links() {
		links = append(links, *l)
	}

	st := g.header.SymbolTable()
	if st == nil && g.path == "/" && g.file.superblock.RootBTreeAddress != 0 {
		st = &message.SymbolTable{
			BTreeAddress:     g.file.superblock.RootBTreeAddress,
			LocalHeapAddress: g.file.superblock.RootHeapAddress,
		}
	}
	if st != nil {
		entries, err := g.symbolTable(st)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			links = append(links, message.Link{
				LinkType:      e.LinkType,
				Name:          e.Name,
				ObjectAddress: e.ObjectAddress,
				SoftLinkValue: e.SoftLinkValue,
			})
		}
	}

	sort.SliceStable(links, func(i, j int) bool { return links[i].Name < links[j].Name })
	if links == nil {
		links = []message.Link{}
	}
	g.links = links
	return links, nil
}

func (g *Group) symbolTable(st *message.SymbolTable) ([]btree.GroupEntry, error) {
	names, err := heap.ReadLocal(g.file.reader, st.LocalHeapAddress)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", g.path, err)
	}
	entries, err := btree.ReadGroupEntries(g.file.reader, st.BTreeAddress, names)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", g.path, err)
	}
	return entries, nil
}

// Members returns the names of the group's members in name order.
func (g *Group) Members() ([]string, error) {
	if g.file.closed {
		return nil, ErrClosed
	}
	links, err := g.loadLinks()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return names, nil
}

// NumObjects returns the number of members in this group.
func (g *Group) NumObjects() (int, error) {
	members, err := g.Members()
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// Attrs returns the attribute names for this group.
func (g *Group) Attrs() []string {
	return attrNames(g.header)
}

// Attr returns an attribute by name, or nil if not found.
func (g *Group) Attr(name string) *Attribute {
	return findAttr(g.header, g.file.reader, name)
}

// HasAttr returns true if the group has an attribute with the given name.
func (g *Group) HasAttr(name string) bool {
	return g.Attr(name) != nil
}
