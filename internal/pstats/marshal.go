package pstats

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/bashprof/bashprof/internal/trace"
)

// Python marshal type codes. Writing sticks to a minimal stable subset
// (dict, small tuple, int32, binary float, unicode) that every version
// of marshal.load accepts. Reading additionally understands the codes
// cProfile-produced files use: ascii string variants, references and
// the long tuple form.
const (
	typeNull        = '0'
	typeNone        = 'N'
	typeFalse       = 'F'
	typeTrue        = 'T'
	typeInt         = 'i'
	typeBinaryFloat = 'g'
	typeTuple       = '('
	typeSmallTuple  = ')'
	typeDict        = '{'
	typeUnicode     = 'u'
	typeInterned    = 't'
	typeAscii       = 'a'
	typeAsciiIntern = 'A'
	typeShortAscii  = 'z'
	typeShortAsciiI = 'Z'
	typeRef         = 'r'

	flagRef = 0x80
)

// Write serializes the table as a Python marshal object graph:
// {(source, lineno, funcname): (cc, nc, tt, ct, {caller: (cc, nc, tt,
// ct)})}. Entries are written in function key order so output is
// deterministic; marshal dicts are order-insensitive to readers.
func Write(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	e := encoder{w: bw}
	e.byte(typeDict)
	for _, key := range t.Keys() {
		entry := t[key]
		e.functionKey(key)
		e.byte(typeSmallTuple)
		e.byte(5)
		e.int32(int32(entry.PrimitiveCalls))
		e.int32(int32(entry.CallCount))
		e.float64(entry.InlineSeconds)
		e.float64(entry.CumulativeSeconds)
		e.callers(entry)
	}
	e.byte(typeNull)
	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) byte(b byte) {
	if e.err == nil {
		e.err = e.w.WriteByte(b)
	}
}

func (e *encoder) int32(v int32) {
	if e.err == nil {
		e.err = binary.Write(e.w, binary.LittleEndian, v)
	}
}

func (e *encoder) float64(v float64) {
	if e.err == nil {
		e.err = binary.Write(e.w, binary.LittleEndian, math.Float64bits(v))
	}
}

func (e *encoder) str(s string) {
	e.byte(typeUnicode)
	e.int32(int32(len(s)))
	if e.err == nil {
		_, e.err = e.w.WriteString(s)
	}
}

func (e *encoder) functionKey(k trace.FunctionKey) {
	e.byte(typeSmallTuple)
	e.byte(3)
	e.str(k.Source)
	e.int32(int32(k.Lineno))
	e.str(k.Funcname)
}

func (e *encoder) callers(entry *Entry) {
	e.byte(typeDict)
	keys := make([]trace.FunctionKey, 0, len(entry.Callers))
	for k := range entry.Callers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	for _, k := range keys {
		c := entry.Callers[k]
		e.functionKey(k)
		e.byte(typeSmallTuple)
		e.byte(4)
		e.int32(int32(c.PrimitiveCalls))
		e.int32(int32(c.CallCount))
		e.float64(c.InlineSeconds)
		e.float64(c.CumulativeSeconds)
	}
	e.byte(typeNull)
}

// Read decodes a marshal-encoded stats file back into a Table. It
// accepts both files written by Write and files produced by cProfile
// itself.
func Read(r io.Reader) (Table, error) {
	d := decoder{r: bufio.NewReader(r)}
	obj, err := d.object()
	if err != nil {
		return nil, err
	}
	pairs, ok := obj.(dict)
	if !ok {
		return nil, fmt.Errorf("stats file does not contain a dict, got %T", obj)
	}
	t := make(Table, len(pairs))
	for _, kv := range pairs {
		key, err := asFunctionKey(kv.key)
		if err != nil {
			return nil, err
		}
		entry, err := asEntry(kv.value)
		if err != nil {
			return nil, fmt.Errorf("entry for %s: %w", key, err)
		}
		t[key] = entry
	}
	return t, nil
}

type (
	kv   struct{ key, value interface{} }
	dict []kv
)

type decoder struct {
	r    *bufio.Reader
	refs []interface{}
}

func (d *decoder) object() (interface{}, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	ref := b&flagRef != 0
	typ := b &^ flagRef

	// Containers reserve their reference slot before decoding their
	// items, matching the writer's numbering.
	switch typ {
	case typeNull:
		return sentinelNull, nil
	case typeNone:
		return nil, nil
	case typeFalse:
		return d.keep(ref, false), nil
	case typeTrue:
		return d.keep(ref, true), nil
	case typeInt:
		v, err := d.int32()
		if err != nil {
			return nil, err
		}
		return d.keep(ref, int(v)), nil
	case typeBinaryFloat:
		var bits uint64
		if err := binary.Read(d.r, binary.LittleEndian, &bits); err != nil {
			return nil, err
		}
		return d.keep(ref, math.Float64frombits(bits)), nil
	case typeUnicode, typeInterned, typeAscii, typeAsciiIntern:
		n, err := d.int32()
		if err != nil {
			return nil, err
		}
		return d.string(ref, int(n))
	case typeShortAscii, typeShortAsciiI:
		n, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		return d.string(ref, int(n))
	case typeTuple:
		n, err := d.int32()
		if err != nil {
			return nil, err
		}
		return d.tuple(ref, int(n))
	case typeSmallTuple:
		n, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		return d.tuple(ref, int(n))
	case typeDict:
		slot := d.reserve(ref)
		var pairs dict
		for {
			key, err := d.object()
			if err != nil {
				return nil, err
			}
			if key == sentinelNull {
				break
			}
			value, err := d.object()
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, kv{key, value})
		}
		d.fill(slot, pairs)
		return pairs, nil
	case typeRef:
		idx, err := d.int32()
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(d.refs) {
			return nil, fmt.Errorf("marshal ref %d out of range", idx)
		}
		return d.refs[idx], nil
	default:
		return nil, fmt.Errorf("unsupported marshal type code %q", typ)
	}
}

// sentinelNull marks the end-of-dict code in the decoded stream.
var sentinelNull = new(struct{})

func (d *decoder) int32() (int32, error) {
	var v int32
	err := binary.Read(d.r, binary.LittleEndian, &v)
	return v, err
}

func (d *decoder) string(ref bool, n int) (interface{}, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return d.keep(ref, string(buf)), nil
}

func (d *decoder) tuple(ref bool, n int) (interface{}, error) {
	slot := d.reserve(ref)
	items := make([]interface{}, n)
	for i := range items {
		v, err := d.object()
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	d.fill(slot, items)
	return items, nil
}

func (d *decoder) keep(ref bool, v interface{}) interface{} {
	if ref {
		d.refs = append(d.refs, v)
	}
	return v
}

func (d *decoder) reserve(ref bool) int {
	if !ref {
		return -1
	}
	d.refs = append(d.refs, nil)
	return len(d.refs) - 1
}

func (d *decoder) fill(slot int, v interface{}) {
	if slot >= 0 {
		d.refs[slot] = v
	}
}

func asFunctionKey(v interface{}) (trace.FunctionKey, error) {
	items, ok := v.([]interface{})
	if !ok || len(items) != 3 {
		return trace.FunctionKey{}, fmt.Errorf("stats key is not a 3-tuple: %v", v)
	}
	source, ok0 := items[0].(string)
	lineno, ok1 := items[1].(int)
	funcname, ok2 := items[2].(string)
	if !ok0 || !ok1 || !ok2 {
		return trace.FunctionKey{}, fmt.Errorf("stats key has wrong field types: %v", v)
	}
	return trace.FunctionKey{Source: source, Lineno: lineno, Funcname: funcname}, nil
}

func asEntry(v interface{}) (*Entry, error) {
	items, ok := v.([]interface{})
	if !ok || len(items) < 4 {
		return nil, fmt.Errorf("not a stats tuple: %v", v)
	}
	e := &Entry{Callers: make(map[trace.FunctionKey]*Caller)}
	var err error
	if e.PrimitiveCalls, e.CallCount, e.InlineSeconds, e.CumulativeSeconds, err = statFields(items); err != nil {
		return nil, err
	}
	if len(items) < 5 || items[4] == nil {
		return e, nil
	}
	pairs, ok := items[4].(dict)
	if !ok {
		return nil, fmt.Errorf("callers field is not a dict: %v", items[4])
	}
	for _, kv := range pairs {
		key, err := asFunctionKey(kv.key)
		if err != nil {
			return nil, err
		}
		citems, ok := kv.value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("caller row is not a tuple: %v", kv.value)
		}
		c := &Caller{}
		if c.PrimitiveCalls, c.CallCount, c.InlineSeconds, c.CumulativeSeconds, err = statFields(citems); err != nil {
			return nil, err
		}
		e.Callers[key] = c
	}
	return e, nil
}

func statFields(items []interface{}) (int, int, float64, float64, error) {
	if len(items) < 4 {
		return 0, 0, 0, 0, fmt.Errorf("stats tuple too short: %v", items)
	}
	pc, ok0 := items[0].(int)
	cc, ok1 := items[1].(int)
	tt, ok2 := asFloat(items[2])
	ct, ok3 := asFloat(items[3])
	if !ok0 || !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, 0, fmt.Errorf("stats tuple has wrong field types: %v", items)
	}
	return pc, cc, tt, ct, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		// cProfile writes integer zeros for functions that never ran.
		return float64(x), true
	}
	return 0, false
}
