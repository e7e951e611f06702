package hdf5

import (
	"errors"
	"sort"
	"strings"
	"testing"
)

func TestParseAttrPath(t *testing.T) {
	tests := []struct {
		path       string
		wantObject string
		wantAttr   string
		wantErr    bool
	}{
		{"/@root_attr", "/", "root_attr", false},
		{"/Header@BoxSize", "/Header", "BoxSize", false},
		{"/PartType0/Masses@units", "/PartType0/Masses", "units", false},
		{"Units@Unit mass in cgs (U_M)", "/Units", "Unit mass in cgs (U_M)", false},
		{"", "", "", true},
		{"/Header", "", "", true},
		{"/Header@", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			obj, attr, err := ParseAttrPath(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Errorf("ParseAttrPath(%q) error = %v, want ErrInvalidPath", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.path, err)
			}
			if obj != tt.wantObject || attr != tt.wantAttr {
				t.Errorf("got (%q, %q), want (%q, %q)", obj, attr, tt.wantObject, tt.wantAttr)
			}
			if got := JoinAttrPath(obj, attr); !strings.HasSuffix(got, "@"+attr) {
				t.Errorf("JoinAttrPath = %q", got)
			}
		})
	}
}

func TestCleanPath(t *testing.T) {
	tests := map[string]string{
		"":                     "/",
		"/":                    "/",
		".":                    "/",
		"PartType0/Masses":     "/PartType0/Masses",
		"/PartType0/Masses/":   "/PartType0/Masses",
		"/PartType0//Masses":   "/PartType0/Masses",
		"./PartType0/./Masses": "/PartType0/Masses",
	}
	for in, want := range tests {
		if got := cleanPath(in); got != want {
			t.Errorf("cleanPath(%q) = %q, want %q", in, got, want)
		}
	}
	if got := splitPath("/"); len(got) != 0 {
		t.Errorf("splitPath(/) = %v", got)
	}
}

func TestHeaderAttributes(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")

	box, err := f.ReadAttr("/Header@BoxSize")
	if err != nil {
		t.Fatalf("ReadAttr failed: %v", err)
	}
	if vals, ok := box.([]float64); !ok || len(vals) != 3 || vals[0] != 100 {
		t.Errorf("BoxSize = %#v", box)
	}

	numPart, err := f.GetAttr("/Header@NumPart_ThisFile")
	if err != nil {
		t.Fatalf("GetAttr failed: %v", err)
	}
	counts, err := numPart.ReadInt64()
	if err != nil {
		t.Fatalf("ReadInt64 failed: %v", err)
	}
	if counts[0] != gasRows || counts[1] != 1000 {
		t.Errorf("NumPart_ThisFile = %v", counts)
	}

	code, err := f.ReadAttr("/Header@Code")
	if err != nil {
		t.Fatalf("ReadAttr failed: %v", err)
	}
	if code != "SWIFT" {
		t.Errorf("Code = %#v, want \"SWIFT\"", code)
	}

	names, err := f.GetAttr("/Header@PartTypeNames")
	if err != nil {
		t.Fatalf("GetAttr failed: %v", err)
	}
	arr, err := names.Array()
	if err != nil {
		t.Fatalf("Array failed: %v", err)
	}
	if arr.DType.String() != "|S9" || arr.Len() != 7 {
		t.Errorf("PartTypeNames = %s %v", arr.DType, arr.Shape)
	}

	if _, err := f.GetAttr("/Header@Missing"); err == nil {
		t.Error("expected error for missing attribute")
	}
}

func TestAttributeValue(t *testing.T) {
	f := openSnapshot(t, "attributes.h5")

	tests := []struct {
		path  string
		check func(v any) bool
	}{
		{"/@title", func(v any) bool { return v == "vlen title" }},
		{"/@count", func(v any) bool { return v == int64(42) }},
		{"/@ratio", func(v any) bool { return v == 0.5 }},
		{"/@flags", func(v any) bool {
			u, ok := v.([]uint64)
			return ok && len(u) == 3 && u[2] == 3
		}},
		{"/@pair", func(v any) bool {
			m, ok := v.(map[string]any)
			return ok && m["id"] == int64(7) && m["mass"] == 1.5
		}},
		{"/scalar@units", func(v any) bool { return v == "Mpc" }},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			v, err := f.ReadAttr(tt.path)
			if err != nil {
				t.Fatalf("ReadAttr failed: %v", err)
			}
			if !tt.check(v) {
				t.Errorf("unexpected value %#v", v)
			}
		})
	}
}

func TestWalk(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")

	var groups, datasets []string
	err := Walk(f.Root(), func(path string, obj any, err error) error {
		if err != nil {
			return err
		}
		switch obj.(type) {
		case *Group:
			groups = append(groups, path)
		case *Dataset:
			datasets = append(datasets, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if groups[0] != "/" {
		t.Errorf("first visited group = %q, want \"/\"", groups[0])
	}
	sort.Strings(datasets)
	want := []string{
		"/PartType0/Coordinates",
		"/PartType0/Masses",
		"/PartType0/ParticleIDs",
		"/PartType0/SmoothingLengths",
		"/PartType1/ParticleIDs",
		"/PartType1/Velocities",
	}
	if strings.Join(datasets, ",") != strings.Join(want, ",") {
		t.Errorf("datasets = %v, want %v", datasets, want)
	}
}

func TestWalkStop(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")

	visited := 0
	err := Walk(f.Root(), func(path string, obj any, err error) error {
		visited++
		if _, ok := obj.(*Dataset); ok {
			return ErrStopWalk
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk returned %v after ErrStopWalk", err)
	}
	if visited == 0 {
		t.Error("callback never called")
	}

	boom := errors.New("boom")
	err = Walk(f.Root(), func(string, any, error) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected callback error, got %v", err)
	}
}

func TestWalkAttrs(t *testing.T) {
	f := openSnapshot(t, "snapshot.h5")

	found := map[string]AttrInfo{}
	err := f.WalkAttrs(func(info AttrInfo) error {
		found[info.Path] = info
		return nil
	})
	if err != nil {
		t.Fatalf("WalkAttrs failed: %v", err)
	}

	info, ok := found["/Units@Unit length in cgs (U_L)"]
	if !ok {
		t.Fatalf("units attribute not visited; saw %d attributes", len(found))
	}
	if info.ObjectType != "group" || info.ObjectPath != "/Units" || info.Attr == nil {
		t.Errorf("unexpected info %+v", info)
	}
	vals, err := info.Attr.ReadFloat64()
	if err != nil || vals[0] != 3.08567758e24 {
		t.Errorf("U_L = %v, %v", vals, err)
	}

	n := 0
	err = f.WalkAttrs(func(AttrInfo) error {
		n++
		return ErrStopWalk
	})
	if err != nil || n != 1 {
		t.Errorf("stop early: n=%d err=%v", n, err)
	}
}
