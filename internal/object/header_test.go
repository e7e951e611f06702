package object

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	hbin "github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

func le16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func le32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func le64(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

func cat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

var (
	dataspaceBody = cat([]byte{1, 1, 0, 0}, make([]byte, 4), le64(10))
	datatypeBody  = cat([]byte{0x10, 0x08, 0, 0}, le32(4), le16(0), le16(32))
	layoutBody    = cat([]byte{3, 1}, le64(0x800), le64(40))
	symtabBody    = cat(le64(0x88), le64(0x2a0))
)

// v1Message frames a message the way version 1 headers store it.
func v1Message(typ message.Type, body []byte) []byte {
	padded := append(append([]byte(nil), body...), make([]byte, (8-len(body)%8)%8)...)
	return cat(le16(uint16(typ)), le16(uint16(len(padded))), []byte{0, 0, 0, 0}, padded)
}

func v1Header(msgs ...[]byte) []byte {
	body := cat(msgs...)
	return cat([]byte{1, 0}, le16(uint16(len(msgs))), le32(1), le32(uint32(len(body))), make([]byte, 4), body)
}

func place(file []byte, addr int, b []byte) { copy(file[addr:], b) }

func reader(file []byte) *hbin.Reader {
	return hbin.NewReader(bytes.NewReader(file), hbin.DefaultSizes)
}

func TestReadV1WithContinuation(t *testing.T) {
	next := cat(
		v1Message(message.TypeDatatype, datatypeBody),
		v1Message(message.TypeDataLayout, layoutBody),
		v1Message(message.TypeAttribute, []byte{9, 0, 0, 0, 0, 0, 0, 0}),
	)
	file := make([]byte, 0x200)
	place(file, 0, v1Header(
		v1Message(message.TypeDataspace, dataspaceBody),
		v1Message(message.TypeContinuation, cat(le64(0x100), le64(uint64(len(next))))),
	))
	place(file, 0x100, next)

	h, err := Read(reader(file), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.Version != 1 || !h.IsDataset() || h.IsGroup() {
		t.Fatalf("header = %+v", h)
	}
	if ds := h.Dataspace(); ds.Dimensions[0] != 10 {
		t.Errorf("dims = %v", ds.Dimensions)
	}
	if dt := h.Datatype(); dt.Size != 4 || !dt.Signed {
		t.Errorf("datatype = %+v", dt)
	}
	if l := h.DataLayout(); l.Address != 0x800 || l.Size != 40 {
		t.Errorf("layout = %+v", l)
	}
	if n := len(h.Attributes()); n != 0 {
		t.Errorf("broken attribute kept: %d attributes", n)
	}
}

func TestReadV1ContinuationLoop(t *testing.T) {
	loop := v1Message(message.TypeContinuation, cat(le64(0x100), le64(24)))
	file := make([]byte, 0x200)
	place(file, 0, v1Header(loop))
	place(file, 0x100, loop)

	if _, err := Read(reader(file), 0); err == nil {
		t.Fatal("continuation loop not detected")
	}
}

func v2Header(flags uint8, msgs []byte) []byte {
	b := cat([]byte("OHDR"), []byte{2, flags, uint8(len(msgs))}, msgs)
	return binary.LittleEndian.AppendUint32(b, hbin.Lookup3(b))
}

func v2Message(typ message.Type, body []byte) []byte {
	return cat([]byte{uint8(typ)}, le16(uint16(len(body))), []byte{0}, body)
}

func TestReadV2(t *testing.T) {
	// Two trailing bytes form a gap too small for another message.
	msgs := cat(v2Message(message.TypeSymbolTable, symtabBody), []byte{0, 0})
	file := v2Header(0, msgs)

	h, err := Read(reader(file), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.Version != 2 || !h.IsGroup() || h.IsDataset() {
		t.Fatalf("header = %+v", h)
	}
	if st := h.SymbolTable(); st.LocalHeapAddress != 0x2a0 {
		t.Errorf("symbol table = %+v", st)
	}

	file[8] ^= 0xff
	if _, err := Read(reader(file), 0); !errors.Is(err, ErrChecksum) {
		t.Fatalf("corrupted header: %v", err)
	}
}

func TestReadV2Continuation(t *testing.T) {
	block := cat([]byte("OCHK"), v2Message(message.TypeDataspace, dataspaceBody))
	block = binary.LittleEndian.AppendUint32(block, hbin.Lookup3(block))

	head := v2Header(0, v2Message(message.TypeContinuation, cat(le64(0x80), le64(uint64(len(block))))))
	file := make([]byte, 0x100)
	place(file, 0, head)
	place(file, 0x80, block)

	h, err := Read(reader(file), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.Dataspace() == nil {
		t.Fatal("dataspace from continuation block missing")
	}
}

func TestReadUnknownVersion(t *testing.T) {
	if _, err := Read(reader([]byte{7, 0, 0, 0}), 0); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("err = %v", err)
	}
}

func TestSharedDatatype(t *testing.T) {
	h := &Header{Messages: []message.Message{
		&message.Shared{Of: message.TypeAttribute, Address: 1},
		&message.Shared{Of: message.TypeDatatype, Address: 0x600},
	}}
	if s := h.SharedDatatype(); s == nil || s.Address != 0x600 {
		t.Errorf("SharedDatatype = %+v", s)
	}
	if h.Datatype() != nil {
		t.Error("shared reference returned as datatype")
	}
}
