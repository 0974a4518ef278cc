package logsym

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func marshalRawDataset(t *testing.T, vars map[uint32]string) []byte {
	t.Helper()
	raw := rawDataset{
		Enums:   map[string]map[int32]string{},
		TDEnums: map[string]map[int32]string{},
		Vars:    vars,
		Fns:     nil,
		SAddr:   0,
		Fmts:    map[uint32][]interface{}{},
	}
	data, err := cbor.Marshal(raw)
	if err != nil {
		t.Fatalf("cbor.Marshal: %v", err)
	}
	return data
}

// TestBuildDatasetDecodesRealisticFormatTuple round-trips a realistic
// 5-tuple format entry (non-negative level and line, as every real entry
// has) through an actual CBOR marshal/unmarshal instead of constructing a
// FormatRecord directly in Go. fxamacker/cbor decodes non-negative CBOR
// integers into interface{} as uint64, not int64, so this is the only way
// to catch a level/line field that only type-asserts to int64.
func TestBuildDatasetDecodesRealisticFormatTuple(t *testing.T) {
	raw := rawDataset{
		Enums:   map[string]map[int32]string{},
		TDEnums: map[string]map[int32]string{},
		Vars:    map[uint32]string{},
		Fns:     nil,
		SAddr:   0,
		Fmts: map[uint32][]interface{}{
			0x4000: {int32(2), "main.c", int32(87), "count=%d", []interface{}{"int32"}},
		},
	}
	data, err := cbor.Marshal(raw)
	if err != nil {
		t.Fatalf("cbor.Marshal: %v", err)
	}

	ds, err := buildDataset(data)
	if err != nil {
		t.Fatalf("buildDataset: %v", err)
	}

	rec, ok := ds.Fmts[0x4000]
	if !ok {
		t.Fatalf("format entry 0x4000 missing: %+v", ds.Fmts)
	}
	if !rec.Decodable {
		t.Fatalf("expected Decodable=true for a real 5-tuple, got %+v", rec)
	}
	if rec.Level != 2 || rec.File != "main.c" || rec.Line != 87 || rec.Format != "count=%d" {
		t.Fatalf("unexpected compiled record: %+v", rec)
	}
	if len(rec.Parsers) != 1 || rec.Parsers[0].Kind != AtomInt32 {
		t.Fatalf("unexpected parsers: %+v", rec.Parsers)
	}
}

// TestCheckReloadPicksUpRewrittenFile simulates a firmware re-flash that
// swaps the symbol table backing Load's file. Rather than sleeping to let
// the filesystem's mtime clock advance, the test drives mtime directly with
// os.Chtimes so the reload decision in CheckReload is deterministic.
func TestCheckReloadPicksUpRewrittenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.cbor")

	original := marshalRawDataset(t, map[uint32]string{0x1000: "gVoltage"})
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatalf("write original: %v", err)
	}
	baseTime := time.Now()
	if err := os.Chtimes(path, baseTime, baseTime); err != nil {
		t.Fatalf("chtimes original: %v", err)
	}

	ds, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Variables[0x1000] != "gVoltage" {
		t.Fatalf("unexpected initial dataset: %+v", ds.Variables)
	}

	updated := marshalRawDataset(t, map[uint32]string{0x1000: "gCurrent", 0x2000: "gTemp"})
	if err := os.WriteFile(path, updated, 0o644); err != nil {
		t.Fatalf("write updated: %v", err)
	}
	reflashTime := baseTime.Add(time.Second)
	if err := os.Chtimes(path, reflashTime, reflashTime); err != nil {
		t.Fatalf("chtimes updated: %v", err)
	}

	if err := ds.CheckReload(); err != nil {
		t.Fatalf("CheckReload: %v", err)
	}

	if ds.Variables[0x1000] != "gCurrent" || ds.Variables[0x2000] != "gTemp" {
		t.Fatalf("dataset did not pick up rewritten file: %+v", ds.Variables)
	}
}

// TestCheckReloadSkipsUntouchedFile guards against the reload firing on
// every decode: with no mtime advance, CheckReload must leave the dataset
// untouched even though the file on disk changed underneath it.
func TestCheckReloadSkipsUntouchedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.cbor")

	original := marshalRawDataset(t, map[uint32]string{0x1000: "gVoltage"})
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatalf("write original: %v", err)
	}
	baseTime := time.Now()
	if err := os.Chtimes(path, baseTime, baseTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	ds, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	updated := marshalRawDataset(t, map[uint32]string{0x1000: "gCurrent"})
	if err := os.WriteFile(path, updated, 0o644); err != nil {
		t.Fatalf("write updated: %v", err)
	}
	// Same mtime as the original load: CheckReload must treat this as
	// unchanged rather than re-parsing.
	if err := os.Chtimes(path, baseTime, baseTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if err := ds.CheckReload(); err != nil {
		t.Fatalf("CheckReload: %v", err)
	}
	if ds.Variables[0x1000] != "gVoltage" {
		t.Fatalf("dataset reloaded despite unchanged mtime: %+v", ds.Variables)
	}
}
