package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	hbin "github.com/robert-malhotra/swiftserve/internal/binary"
)

func v0Block(version uint8, cached bool) []byte {
	b := []byte(Signature)
	b = append(b, version, 0, 0, 0, 0, 8, 8, 0)
	b = binary.LittleEndian.AppendUint16(b, 4)
	b = binary.LittleEndian.AppendUint16(b, 16)
	b = binary.LittleEndian.AppendUint32(b, 0)
	if version == 1 {
		b = binary.LittleEndian.AppendUint16(b, 32)
		b = append(b, 0, 0)
	}
	for _, a := range []uint64{0, ^uint64(0), 0x4000, ^uint64(0)} {
		b = binary.LittleEndian.AppendUint64(b, a)
	}
	b = binary.LittleEndian.AppendUint64(b, 0)    // link name offset
	b = binary.LittleEndian.AppendUint64(b, 0x60) // root object header
	if cached {
		b = binary.LittleEndian.AppendUint32(b, 1)
	} else {
		b = binary.LittleEndian.AppendUint32(b, 0)
	}
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = binary.LittleEndian.AppendUint64(b, 0x88)
	b = binary.LittleEndian.AppendUint64(b, 0x2a0)
	return b
}

func v2Block(offsetSize uint8) []byte {
	b := []byte(Signature)
	b = append(b, 2, offsetSize, 8, 0)
	for _, a := range []uint64{0, 0xffffffff, 0x9000, 0x30} {
		if offsetSize == 4 {
			b = binary.LittleEndian.AppendUint32(b, uint32(a))
		} else {
			b = binary.LittleEndian.AppendUint64(b, a)
		}
	}
	return binary.LittleEndian.AppendUint32(b, hbin.Lookup3(b))
}

func TestReadV0(t *testing.T) {
	sb, err := Read(bytes.NewReader(v0Block(0, true)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if sb.Version != 0 || sb.Sizes != hbin.DefaultSizes {
		t.Errorf("version %d sizes %+v", sb.Version, sb.Sizes)
	}
	if sb.RootAddress != 0x60 || sb.EOFAddress != 0x4000 {
		t.Errorf("root 0x%x eof 0x%x", sb.RootAddress, sb.EOFAddress)
	}
	if sb.RootBTreeAddress != 0x88 || sb.RootHeapAddress != 0x2a0 {
		t.Errorf("cached root btree 0x%x heap 0x%x", sb.RootBTreeAddress, sb.RootHeapAddress)
	}
}

func TestReadV1Uncached(t *testing.T) {
	sb, err := Read(bytes.NewReader(v0Block(1, false)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if sb.RootAddress != 0x60 || sb.RootBTreeAddress != 0 {
		t.Errorf("superblock = %+v", sb)
	}
}

func TestReadV2(t *testing.T) {
	for _, size := range []uint8{4, 8} {
		sb, err := Read(bytes.NewReader(v2Block(size)))
		if err != nil {
			t.Fatalf("offset size %d: %v", size, err)
		}
		if sb.Sizes.Offset != int(size) || sb.RootAddress != 0x30 || sb.EOFAddress != 0x9000 {
			t.Errorf("offset size %d: %+v", size, sb)
		}
	}
}

func TestReadV2Checksum(t *testing.T) {
	b := v2Block(8)
	b[len(b)-10] ^= 0x01
	if _, err := Read(bytes.NewReader(b)); !errors.Is(err, ErrChecksum) {
		t.Fatalf("err = %v, want ErrChecksum", err)
	}
}

func TestReadAfterUserBlock(t *testing.T) {
	file := append(make([]byte, 1024), v2Block(8)...)
	sb, err := Read(bytes.NewReader(file))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if sb.Location != 1024 {
		t.Errorf("Location = %d", sb.Location)
	}
}

func TestReadErrors(t *testing.T) {
	if _, err := Read(bytes.NewReader(make([]byte, 4096))); !errors.Is(err, ErrNotHDF5) {
		t.Errorf("zeros: %v", err)
	}
	bad := v0Block(0, false)
	bad[8] = 9
	if _, err := Read(bytes.NewReader(bad)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("version 9: %v", err)
	}
	odd := v0Block(0, false)
	odd[13] = 3
	if _, err := Read(bytes.NewReader(odd)); err == nil {
		t.Error("3-byte offsets accepted")
	}
}
