package store

// Kind tags the concrete variant held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	default:
		return "none"
	}
}

// Value is a tagged variant holding exactly one of the three supported
// data-structure shapes. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind
	Str  []byte
	List [][]byte
	Set  map[string]struct{}
}

// entryOverhead approximates the fixed per-key bookkeeping cost (map
// bucket, entry struct, pointers). size() does not add it, so memory
// accounting counts value bytes only.
const entryOverhead = 64

// size approximates the number of bytes a value contributes to the
// keyspace, counting only the bytes the value holds (not the key, and no
// per-entry overhead).
// It is not exact (map and slice headers, allocator padding are ignored)
// but is stable and cheap enough to recompute on every mutation.
func (v Value) size() int64 {
	switch v.Kind {
	case KindString:
		return int64(len(v.Str))
	case KindList:
		var n int64
		for _, e := range v.List {
			n += int64(len(e))
		}
		return n
	case KindSet:
		var n int64
		for m := range v.Set {
			n += int64(len(m))
		}
		return n
	default:
		return 0
	}
}

func newStringValue(b []byte) Value { return Value{Kind: KindString, Str: b} }
func newListValue() Value           { return Value{Kind: KindList, List: nil} }
func newSetValue() Value            { return Value{Kind: KindSet, Set: make(map[string]struct{})} }

// clone returns a deep copy, used when handing a value to persistence or
// snapshot code that must not observe later in-place mutation.
func (v Value) clone() Value {
	switch v.Kind {
	case KindString:
		b := make([]byte, len(v.Str))
		copy(b, v.Str)
		return Value{Kind: KindString, Str: b}
	case KindList:
		l := make([][]byte, len(v.List))
		for i, e := range v.List {
			b := make([]byte, len(e))
			copy(b, e)
			l[i] = b
		}
		return Value{Kind: KindList, List: l}
	case KindSet:
		s := make(map[string]struct{}, len(v.Set))
		for m := range v.Set {
			s[m] = struct{}{}
		}
		return Value{Kind: KindSet, Set: s}
	default:
		return Value{}
	}
}
