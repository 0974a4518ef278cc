// Package logsym loads a CBOR-encoded symbol table produced from a
// firmware build's debug information and decodes raw device log frames
// into structured, human-readable records.
package logsym

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"p1150serial/errcode"
)

// ParserKind identifies one field-extraction atom in a format record's
// parser list.
type ParserKind int

const (
	AtomInt32 ParserKind = iota
	AtomUint32
	AtomInt64
	AtomUint64
	AtomDouble
	AtomPointer
	AtomBytes
	AtomString
	AtomSym
	AtomEnum
)

// ParserAtom is one compiled field-extraction step.
type ParserAtom struct {
	Kind     ParserKind
	EnumName string // set only when Kind == AtomEnum
}

// FuncRange is a symbol's address range, used to resolve a `sym` field to
// "<name>+0x<offset>".
type FuncRange struct {
	Low, High uint32
	Name      string
}

// FormatRecord is the compiled form of one address's format-string entry.
// Decodable is false for 3-tuple passthrough records and 5-tuples with a
// null level; both cases fall back to an UNDECODED record.
type FormatRecord struct {
	Decodable bool
	Level     int32
	File      string
	Line      int32
	Format    string
	Parsers   []ParserAtom
}

// Dataset is the immutable (modulo hot-reload) symbol table the decoder
// consumes.
type Dataset struct {
	mu sync.RWMutex

	Enums     map[string]map[int32]string
	TDEnums   map[string]map[int32]string
	Variables map[uint32]string
	Functions []FuncRange
	SAddr     uint32
	Fmts      map[uint32]FormatRecord

	varAddrs []uint32 // Variables' keys, sorted ascending, for nearest-preceding lookup

	path    string
	modTime time.Time
	refTime time.Time
	count   uint64
}

type rawFuncRange struct {
	Low  uint32 `cbor:"low"`
	High uint32 `cbor:"high"`
	Name string `cbor:"name"`
}

type rawDataset struct {
	Enums   map[string]map[int32]string `cbor:"enums"`
	TDEnums map[string]map[int32]string `cbor:"tdenums"`
	Vars    map[uint32]string           `cbor:"vars"`
	Fns     []rawFuncRange              `cbor:"fns"`
	SAddr   uint32                      `cbor:"saddr"`
	Fmts    map[uint32][]interface{}    `cbor:"fmts"`
}

// Load parses the CBOR symbol table at path and builds a Dataset.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errcode.SymbolLoadFailed, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errcode.SymbolLoadFailed, err)
	}

	ds, err := buildDataset(data)
	if err != nil {
		return nil, err
	}
	ds.path = path
	ds.modTime = info.ModTime()
	ds.refTime = time.Now()
	return ds, nil
}

func buildDataset(data []byte) (*Dataset, error) {
	var raw rawDataset
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errcode.SymbolLoadFailed, err)
	}

	fmts := make(map[uint32]FormatRecord, len(raw.Fmts))
	for addr, elems := range raw.Fmts {
		rec, err := compileFormatRecord(elems)
		if err != nil {
			return nil, fmt.Errorf("%w: address 0x%x: %v", errcode.SymbolLoadFailed, addr, err)
		}
		fmts[addr] = rec
	}

	functions := make([]FuncRange, 0, len(raw.Fns))
	for _, f := range raw.Fns {
		functions = append(functions, FuncRange{Low: f.Low, High: f.High, Name: f.Name})
	}

	varAddrs := make([]uint32, 0, len(raw.Vars))
	for addr := range raw.Vars {
		varAddrs = append(varAddrs, addr)
	}
	sort.Slice(varAddrs, func(i, j int) bool { return varAddrs[i] < varAddrs[j] })

	return &Dataset{
		Enums:     raw.Enums,
		TDEnums:   raw.TDEnums,
		Variables: raw.Vars,
		Functions: functions,
		SAddr:     raw.SAddr,
		Fmts:      fmts,
		varAddrs:  varAddrs,
	}, nil
}

// toInt64 accepts either decoded CBOR integer representation: fxamacker/cbor
// unmarshals non-negative integers into uint64 and only negative ones into
// int64, so a field like "level" that is always non-negative in practice
// still needs both cases handled.
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func compileFormatRecord(elems []interface{}) (FormatRecord, error) {
	switch len(elems) {
	case 3:
		return FormatRecord{Decodable: false}, nil
	case 5:
		levelRaw, ok := toInt64(elems[0])
		if !ok {
			return FormatRecord{Decodable: false}, nil
		}
		file, _ := elems[1].(string)
		lineRaw, _ := toInt64(elems[2])
		format, _ := elems[3].(string)
		parserList, _ := elems[4].([]interface{})
		parsers, err := compileParsers(parserList)
		if err != nil {
			return FormatRecord{}, err
		}
		return FormatRecord{
			Decodable: true,
			Level:     int32(levelRaw),
			File:      file,
			Line:      int32(lineRaw),
			Format:    format,
			Parsers:   parsers,
		}, nil
	default:
		return FormatRecord{}, fmt.Errorf("unexpected format tuple length %d", len(elems))
	}
}

func compileParsers(raw []interface{}) ([]ParserAtom, error) {
	atoms := make([]ParserAtom, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			kind, ok := atomKindByName(v)
			if !ok {
				return nil, fmt.Errorf("unknown parser atom %q", v)
			}
			atoms = append(atoms, ParserAtom{Kind: kind})
		case []interface{}:
			if len(v) != 2 {
				return nil, fmt.Errorf("malformed enum atom %v", v)
			}
			tag, _ := v[0].(string)
			name, _ := v[1].(string)
			if tag != "enum" {
				return nil, fmt.Errorf("unknown compound atom tag %q", tag)
			}
			atoms = append(atoms, ParserAtom{Kind: AtomEnum, EnumName: name})
		default:
			return nil, fmt.Errorf("unsupported parser atom value %v", v)
		}
	}
	return atoms, nil
}

func atomKindByName(name string) (ParserKind, bool) {
	switch name {
	case "int32":
		return AtomInt32, true
	case "uint32":
		return AtomUint32, true
	case "int64":
		return AtomInt64, true
	case "uint64":
		return AtomUint64, true
	case "double":
		return AtomDouble, true
	case "pointer":
		return AtomPointer, true
	case "bytes":
		return AtomBytes, true
	case "string":
		return AtomString, true
	case "sym":
		return AtomSym, true
	default:
		return 0, false
	}
}

// CheckReload re-parses the backing file if its mtime has advanced since
// the dataset was last (re)loaded, mirroring the original decoder's
// load-on-touch behavior so a long-running viewer picks up freshly flashed
// firmware without a restart.
func (d *Dataset) CheckReload() error {
	d.mu.RLock()
	path := d.path
	lastMod := d.modTime
	d.mu.RUnlock()
	if path == "" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil // original file may be transiently unavailable; keep serving the old dataset
	}
	if !info.ModTime().After(lastMod) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	fresh, err := buildDataset(data)
	if err != nil {
		return nil
	}

	d.mu.Lock()
	d.Enums = fresh.Enums
	d.TDEnums = fresh.TDEnums
	d.Variables = fresh.Variables
	d.Functions = fresh.Functions
	d.SAddr = fresh.SAddr
	d.Fmts = fresh.Fmts
	d.varAddrs = fresh.varAddrs
	d.modTime = info.ModTime()
	d.mu.Unlock()
	return nil
}

// Target returns the numeric device identifier embedded in the symbol
// table's saddr metadata.
func (d *Dataset) Target() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return int((d.SAddr >> 20) & 0xF)
}
