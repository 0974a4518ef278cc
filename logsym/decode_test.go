package logsym

import (
	"strings"
	"testing"
	"time"
)

func newTestDataset() *Dataset {
	return &Dataset{
		Enums:     map[string]map[int32]string{},
		TDEnums:   map[string]map[int32]string{},
		Variables: map[uint32]string{},
		Functions: nil,
		Fmts:      map[uint32]FormatRecord{},
		refTime:   time.Now(),
	}
}

func TestDecodeHappyPath(t *testing.T) {
	d := newTestDataset()
	d.Fmts[0x1000] = FormatRecord{
		Decodable: true,
		Level:     0,
		File:      "a.c",
		Line:      42,
		Format:    "v=%d",
		Parsers:   []ParserAtom{{Kind: AtomInt32}},
	}

	frame := []byte{0xf9, 0xff, 0xff, 0xff} // -7 little endian
	rec := d.Decode(0, 0x1000, frame)

	if rec.Level != "INFO" || rec.File != "a.c" || rec.Line != 42 {
		t.Fatalf("unexpected metadata: %+v", rec)
	}
	if rec.Text != "v=-7" {
		t.Fatalf("got text %q", rec.Text)
	}
}

func TestDecodeSymResolution(t *testing.T) {
	d := newTestDataset()
	d.Functions = []FuncRange{{Low: 0x2000, High: 0x2100, Name: "foo"}}
	d.Fmts[0x1000] = FormatRecord{
		Decodable: true,
		Format:    "at %s",
		Parsers:   []ParserAtom{{Kind: AtomSym}},
	}

	frame := make([]byte, 4)
	frame[0] = 0x49
	frame[1] = 0x20 // 0x2049, masked low bit -> 0x2048

	rec := d.Decode(0, 0x1000, frame)
	if rec.Text != "at foo+0x48" {
		t.Fatalf("got %q", rec.Text)
	}

	frame2 := make([]byte, 4)
	frame2[0] = 0x00
	frame2[1] = 0x90
	rec2 := d.Decode(0, 0x1000, frame2)
	if !strings.Contains(rec2.Text, "0x00009000") {
		t.Fatalf("got %q", rec2.Text)
	}
}

func TestDecodeEnumMiss(t *testing.T) {
	d := newTestDataset()
	d.Enums["Color"] = map[int32]string{0: "RED", 1: "GREEN"}
	d.Fmts[0x1000] = FormatRecord{
		Decodable: true,
		Format:    "color=%d",
		Parsers:   []ParserAtom{{Kind: AtomEnum, EnumName: "Color"}},
	}

	frame := []byte{0x02, 0x00, 0x00, 0x00}
	rec := d.Decode(0, 0x1000, frame)
	if rec.Text != "color=<Color:2>" {
		t.Fatalf("got %q", rec.Text)
	}
}

func TestDecodeUndecodedFallback(t *testing.T) {
	d := newTestDataset()
	rec := d.Decode(3, 0x9999, []byte{0x01, 0x02})
	if rec.Level != "RAW" || !strings.Contains(rec.Text, "UNDECODED") {
		t.Fatalf("got %+v", rec)
	}
}

func TestDecodeFormatFailureFallback(t *testing.T) {
	d := newTestDataset()
	d.Fmts[0x1000] = FormatRecord{
		Decodable: true,
		Format:    "v=%d w=%d",
		Parsers:   []ParserAtom{{Kind: AtomInt32}},
	}
	frame := []byte{0x01, 0x00, 0x00, 0x00}
	rec := d.Decode(0, 0x1000, frame)
	if !strings.Contains(rec.Text, "FORMATTING FAILED") {
		t.Fatalf("got %q", rec.Text)
	}
}
