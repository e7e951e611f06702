package binary

import (
	"encoding/binary"
	"testing"
)

func TestLookup3(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0xdeadbeef},
		{"Four score and seven years ago", 0x17770551},
	}
	for _, tt := range tests {
		if got := Lookup3([]byte(tt.in)); got != tt.want {
			t.Errorf("Lookup3(%q) = %#08x, want %#08x", tt.in, got, tt.want)
		}
	}
}

func TestLookup3BlockBoundaries(t *testing.T) {
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i * 7)
	}
	seen := make(map[uint32]int)
	for n := 0; n <= len(data); n++ {
		sum := Lookup3(data[:n])
		if prev, ok := seen[sum]; ok {
			t.Errorf("lengths %d and %d hash to %#08x", prev, n, sum)
		}
		seen[sum] = n
	}
}

func TestVerifyLookup3(t *testing.T) {
	block := []byte("superblock body.")
	block = binary.LittleEndian.AppendUint32(block, Lookup3(block))
	if !VerifyLookup3(block) {
		t.Fatal("valid block rejected")
	}
	block[0] ^= 1
	if VerifyLookup3(block) {
		t.Fatal("corrupted block accepted")
	}
	if VerifyLookup3([]byte{1, 2}) {
		t.Fatal("short block accepted")
	}
}

func TestFletcher32(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint32
	}{
		{nil, 0},
		{[]byte{1, 2, 3, 4}, 0x05080406},
		{[]byte{1, 2, 3}, 0x05040402},
	}
	for _, tt := range tests {
		if got := Fletcher32(tt.in); got != tt.want {
			t.Errorf("Fletcher32(%v) = %#08x, want %#08x", tt.in, got, tt.want)
		}
	}
}

func TestFletcher32LongInput(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = 0xff
	}
	// Every word is 0xffff, which is congruent to zero.
	if got := Fletcher32(data); got&0xffff != 0xffff && got&0xffff != 0 {
		t.Errorf("Fletcher32 low half = %#04x", got&0xffff)
	}
}
