package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/swiftserve/hdf5"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

var (
	inspectAttrs bool
	inspectDepth int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the group and field tree of a snapshot",
	Long: `Print every group and field of a snapshot with its shape, dtype and
storage layout. --attrs also prints every attribute value.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectAttrs, "attrs", false, "print attribute values")
	inspectCmd.Flags().IntVar(&inspectDepth, "depth", 0, "maximum group depth (0 for no limit)")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ref, err := reference()
	if err != nil {
		return err
	}
	path, err := app.table.ResolveExisting(ref)
	if err != nil {
		return err
	}
	f, err := hdf5.Open(path, openOptions(app.cfg.HDF5)...)
	if err != nil {
		return err
	}
	defer f.Close()

	w := stdout(cmd)
	fmt.Fprintf(w, "%s (superblock v%d)\n", f.Path(), f.Version())
	if err := printTree(w, f.Root(), inspectDepth); err != nil {
		return err
	}
	if inspectAttrs {
		return printAttrs(w, f)
	}
	return nil
}

func depthOf(p string) int {
	if p == "/" {
		return 0
	}
	return strings.Count(p, "/")
}

func printTree(w io.Writer, root *hdf5.Group, maxDepth int) error {
	return hdf5.Walk(root, func(p string, obj any, err error) error {
		d := depthOf(p)
		if maxDepth > 0 && d > maxDepth {
			return nil
		}
		indent := strings.Repeat("  ", d)
		if err != nil {
			fmt.Fprintf(w, "%s%s: ERROR %v\n", indent, p, err)
			return nil
		}
		switch o := obj.(type) {
		case *hdf5.Group:
			n, _ := o.NumObjects()
			name := strings.TrimSuffix(o.Path(), "/") + "/"
			fmt.Fprintf(w, "%s%s (%d members, %d attrs)\n", indent, name, n, len(o.Attrs()))
		case *hdf5.Dataset:
			dt := "?"
			if t, err := o.ElementType(); err == nil {
				dt = t.String()
			}
			fmt.Fprintf(w, "%s%s %v %s %s\n", indent, o.Name(), o.Shape(), dt, layoutName(o.LayoutClass()))
		}
		return nil
	})
}

func printAttrs(w io.Writer, f *hdf5.File) error {
	return f.WalkAttrs(func(info hdf5.AttrInfo) error {
		if info.Attr == nil {
			return nil
		}
		v, err := info.Attr.Value()
		if err != nil {
			fmt.Fprintf(w, "%s = ERROR %v\n", info.Path, err)
			return nil
		}
		fmt.Fprintf(w, "%s = %v\n", info.Path, v)
		return nil
	})
}

func layoutName(c message.LayoutClass) string {
	switch c {
	case message.LayoutCompact:
		return "compact"
	case message.LayoutContiguous:
		return "contiguous"
	case message.LayoutChunked:
		return "chunked"
	case message.LayoutVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("layout(%d)", c)
	}
}
