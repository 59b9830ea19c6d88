package store

import "bytes"

// LPush pushes each of values onto the head of the list at key, one at a
// time (so the last argument ends up closest to the head), creating the
// list if absent. Returns the new length.
func (e *Engine) LPush(key string, values ...[]byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOOMLocked(); err != nil {
		return 0, err
	}

	ent, found := e.lockedLookup(key)
	if !found {
		ent = &entry{value: newListValue()}
		e.data[key] = ent
	} else if ent.value.Kind != KindList {
		return 0, ErrWrongType
	}

	for _, v := range values {
		b := make([]byte, len(v))
		copy(b, v)
		ent.value.List = append([][]byte{b}, ent.value.List...)
	}
	e.trackEntryLocked(key)
	return len(ent.value.List), nil
}

// LRange returns a copy of the Redis-indexed inclusive slice [start, stop]
// of the list at key. A missing key behaves as an empty list.
func (e *Engine) LRange(key string, start, stop int) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return nil, nil
	}
	if ent.value.Kind != KindList {
		return nil, ErrWrongType
	}
	from, to := clampRange(start, stop, len(ent.value.List))
	out := make([][]byte, to-from)
	for i := from; i < to; i++ {
		b := make([]byte, len(ent.value.List[i]))
		copy(b, ent.value.List[i])
		out[i-from] = b
	}
	return out, nil
}

// LLen returns the length of the list at key, or 0 if missing.
func (e *Engine) LLen(key string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return 0, nil
	}
	if ent.value.Kind != KindList {
		return 0, ErrWrongType
	}
	return len(ent.value.List), nil
}

// LPop removes and returns up to count elements from the head of the list
// at key. ok is false if the key is missing or already empty; the key is
// deleted once it becomes empty.
func (e *Engine) LPop(key string, count int) (popped [][]byte, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return nil, false, nil
	}
	if ent.value.Kind != KindList {
		return nil, false, ErrWrongType
	}
	if len(ent.value.List) == 0 {
		delete(e.data, key)
		e.trackEntryLocked(key)
		return nil, false, nil
	}

	if count > len(ent.value.List) {
		count = len(ent.value.List)
	}
	popped = ent.value.List[:count]
	ent.value.List = ent.value.List[count:]
	if len(ent.value.List) == 0 {
		delete(e.data, key)
	}
	e.trackEntryLocked(key)
	return popped, true, nil
}

// LIndex returns the element at Redis-style index i (negative from tail).
// ok is false for a missing key or an out-of-range index.
func (e *Engine) LIndex(key string, i int) (value []byte, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return nil, false, nil
	}
	if ent.value.Kind != KindList {
		return nil, false, ErrWrongType
	}
	n := len(ent.value.List)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, false, nil
	}
	b := make([]byte, len(ent.value.List[i]))
	copy(b, ent.value.List[i])
	return b, true, nil
}

// LSet replaces the element at index i with value. Returns ErrNoSuchKey if
// key is absent, ErrIndexOutOfRange if i does not address an element.
func (e *Engine) LSet(key string, i int, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return ErrNoSuchKey
	}
	if ent.value.Kind != KindList {
		return ErrWrongType
	}
	n := len(ent.value.List)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return ErrIndexOutOfRange
	}
	if len(value) > len(ent.value.List[i]) {
		if err := e.checkOOMLocked(); err != nil {
			return err
		}
	}
	b := make([]byte, len(value))
	copy(b, value)
	ent.value.List[i] = b
	e.trackEntryLocked(key)
	return nil
}

// ListInsertWhere selects which side of the pivot LInsert inserts on.
type ListInsertWhere int

const (
	Before ListInsertWhere = iota
	After
)

// LInsert inserts value immediately before or after the first occurrence of
// pivot (scanning from the head), returning the new length. Returns -1 if
// pivot is not found, 0 if key is missing.
func (e *Engine) LInsert(key string, where ListInsertWhere, pivot, value []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return 0, nil
	}
	if ent.value.Kind != KindList {
		return 0, ErrWrongType
	}
	if err := e.checkOOMLocked(); err != nil {
		return 0, err
	}

	idx := -1
	for i, el := range ent.value.List {
		if bytes.Equal(el, pivot) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return -1, nil
	}
	if where == After {
		idx++
	}

	b := make([]byte, len(value))
	copy(b, value)

	list := ent.value.List
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = b
	ent.value.List = list
	e.trackEntryLocked(key)
	return len(list), nil
}
