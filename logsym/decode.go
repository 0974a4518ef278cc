package logsym

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"p1150serial/x/conv"
)

// Record is one decoded log entry.
type Record struct {
	Count uint64
	Ts    time.Duration
	Level string
	File  string
	Line  int32
	Text  string
}

var levelNames = []string{"INFO", "TRACE ", "WARN ", "ERROR", "FATAL", "PANIC"}

func levelName(level int32) string {
	if level < 0 || int(level) >= len(levelNames) {
		return "<bad level>"
	}
	return levelNames[level]
}

// Decode turns one raw device frame into a structured Record. target and
// address identify the originating device and the format-table key; frame
// is the payload bytes that follow the address in the wire frame.
func (d *Dataset) Decode(target int, address uint32, frame []byte) Record {
	d.CheckReload()

	clean := address &^ 3
	count := atomic.AddUint64(&d.count, 1)
	ts := time.Since(d.refTime)

	d.mu.RLock()
	rec, ok := d.Fmts[clean]
	d.mu.RUnlock()

	if !ok || !rec.Decodable {
		return Record{
			Count: count,
			Ts:    ts,
			Level: "RAW",
			File:  "?",
			Line:  0,
			Text:  fmt.Sprintf("UNDECODED: TGT=%d ADDR=0x%x FRAME=%s", target, address, hex.EncodeToString(frame)),
		}
	}

	rendered, err := d.parseFrame(rec.Parsers, frame)
	if err != nil {
		return Record{
			Count: count,
			Ts:    ts,
			Level: levelName(rec.Level),
			File:  rec.File,
			Line:  rec.Line,
			Text:  fmt.Sprintf("%s [%s - %v]", rec.Format, hex.EncodeToString(frame), err),
		}
	}

	text, ferr := applyFormat(rec.Format, rendered)
	if ferr != nil {
		text = fmt.Sprintf("%s (FORMATTING FAILED) %v", rec.Format, rendered)
	}
	return Record{
		Count: count,
		Ts:    ts,
		Level: levelName(rec.Level),
		File:  rec.File,
		Line:  rec.Line,
		Text:  text,
	}
}

func (d *Dataset) parseFrame(atoms []ParserAtom, frame []byte) ([]string, error) {
	pos := 0
	rendered := make([]string, 0, len(atoms))
	for _, atom := range atoms {
		switch atom.Kind {
		case AtomInt32, AtomUint32:
			if pos+4 > len(frame) {
				return nil, fmt.Errorf("truncated int32 field")
			}
			v := binary.LittleEndian.Uint32(frame[pos:])
			pos += 4
			if atom.Kind == AtomInt32 {
				rendered = append(rendered, strconv.FormatInt(int64(int32(v)), 10))
			} else {
				rendered = append(rendered, strconv.FormatUint(uint64(v), 10))
			}
		case AtomInt64, AtomUint64:
			if pos+8 > len(frame) {
				return nil, fmt.Errorf("truncated int64 field")
			}
			v := binary.LittleEndian.Uint64(frame[pos:])
			pos += 8
			if atom.Kind == AtomInt64 {
				rendered = append(rendered, strconv.FormatInt(int64(v), 10))
			} else {
				rendered = append(rendered, strconv.FormatUint(v, 10))
			}
		case AtomDouble:
			if pos+8 > len(frame) {
				return nil, fmt.Errorf("truncated double field")
			}
			bits := binary.LittleEndian.Uint64(frame[pos:])
			pos += 8
			rendered = append(rendered, strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64))
		case AtomPointer:
			if pos+4 > len(frame) {
				return nil, fmt.Errorf("truncated pointer field")
			}
			v := binary.LittleEndian.Uint32(frame[pos:])
			pos += 4
			var buf [8]byte
			rendered = append(rendered, "0x"+string(conv.U32Hex(buf[:], v)))
		case AtomBytes:
			rendered = append(rendered, hex.EncodeToString(frame[pos:]))
			pos = len(frame)
		case AtomString:
			nul := -1
			for i := pos; i < len(frame); i++ {
				if frame[i] == 0 {
					nul = i
					break
				}
			}
			if nul < 0 {
				return nil, fmt.Errorf("unterminated string field")
			}
			rendered = append(rendered, string(frame[pos:nul]))
			pos = nul + 1
		case AtomSym:
			if pos+4 > len(frame) {
				return nil, fmt.Errorf("truncated sym field")
			}
			v := binary.LittleEndian.Uint32(frame[pos:])
			pos += 4
			rendered = append(rendered, d.resolveSym(v))
		case AtomEnum:
			if pos+4 > len(frame) {
				return nil, fmt.Errorf("truncated enum field")
			}
			v := int32(binary.LittleEndian.Uint32(frame[pos:]))
			pos += 4
			rendered = append(rendered, d.resolveEnum(atom.EnumName, v))
		}
	}
	if pos < len(frame) {
		return nil, fmt.Errorf("%d trailing bytes after last parser", len(frame)-pos)
	}
	return rendered, nil
}

// resolveSym resolves a 32-bit address to "<name>+0x<offset>" via the
// function-range table (low bit masked, as the original ARM/Thumb symbol
// tables encode instruction-set mode in that bit), falling back to the
// nearest preceding variable within a 0x3000 window, else a bare hex
// address.
func (d *Dataset) resolveSym(addr uint32) string {
	masked := addr &^ 1

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, fn := range d.Functions {
		if masked >= fn.Low && masked < fn.High {
			return fmt.Sprintf("%s+0x%x", fn.Name, masked-fn.Low)
		}
	}

	if len(d.varAddrs) > 0 {
		i := searchLastLE(d.varAddrs, addr)
		if i >= 0 {
			base := d.varAddrs[i]
			if addr-base < 0x3000 {
				return fmt.Sprintf("%s+0x%x", d.Variables[base], addr-base)
			}
		}
	}

	var buf [8]byte
	return "0x" + string(conv.U32Hex(buf[:], addr))
}

// searchLastLE returns the index of the largest element <= target, or -1.
func searchLastLE(sorted []uint32, target uint32) int {
	lo, hi := 0, len(sorted)-1
	best := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if sorted[mid] <= target {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

func (d *Dataset) resolveEnum(name string, value int32) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if members, ok := d.Enums[name]; ok {
		if member, ok := members[value]; ok {
			return member
		}
		return fmt.Sprintf("<%s:%d>", name, value)
	}
	if members, ok := d.TDEnums[name]; ok {
		if member, ok := members[value]; ok {
			return member
		}
		return fmt.Sprintf("<%s:%d>", name, value)
	}
	return fmt.Sprintf("<!%s:%d>", name, value)
}

var formatSpec = regexp.MustCompile(`%[-+0 #]*[0-9]*\.?[0-9]*(?:ll|l|h|hh|z|j|t)?[a-zA-Z%]`)

// applyFormat performs the printf-style substitution, consuming one
// rendered value per non-%% conversion specifier encountered in order. It
// fails if the number of specifiers doesn't match the number of rendered
// values, rather than risk a mismatched-type panic from fmt.Sprintf.
func applyFormat(format string, rendered []string) (string, error) {
	idx := 0
	var failed bool
	out := formatSpec.ReplaceAllStringFunc(format, func(spec string) string {
		if spec == "%%" {
			return "%"
		}
		if idx >= len(rendered) {
			failed = true
			return spec
		}
		v := rendered[idx]
		idx++
		return v
	})
	if failed || idx != len(rendered) {
		return "", fmt.Errorf("format/parser field count mismatch")
	}
	return out, nil
}
