package store

import "time"

// SetOptions carries the optional EX/PX modifiers to SET.
type SetOptions struct {
	ExpireAt *time.Time // nil means no expiry (and clears any prior one)
}

// Set overwrites key with value, replacing any prior value regardless of
// its type, and applies (or clears) the expiry per opts.
func (e *Engine) Set(key string, value []byte, opts SetOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOOMLocked(); err != nil {
		return err
	}

	b := make([]byte, len(value))
	copy(b, value)
	e.data[key] = &entry{value: newStringValue(b), expiresAt: opts.ExpireAt}
	e.trackEntryLocked(key)
	return nil
}

// Get returns the string at key, or ok=false if missing/expired.
func (e *Engine) Get(key string) (value []byte, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return nil, false, nil
	}
	if ent.value.Kind != KindString {
		return nil, false, ErrWrongType
	}
	out := make([]byte, len(ent.value.Str))
	copy(out, ent.value.Str)
	return out, true, nil
}

// Append appends value to the string at key, creating it if absent, and
// returns the new length.
func (e *Engine) Append(key string, value []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOOMLocked(); err != nil {
		return 0, err
	}

	ent, found := e.lockedLookup(key)
	if !found {
		b := make([]byte, len(value))
		copy(b, value)
		e.data[key] = &entry{value: newStringValue(b)}
		e.trackEntryLocked(key)
		return len(b), nil
	}
	if ent.value.Kind != KindString {
		return 0, ErrWrongType
	}
	ent.value.Str = append(ent.value.Str, value...)
	e.trackEntryLocked(key)
	return len(ent.value.Str), nil
}

// Strlen returns the length of the string at key, or 0 if missing.
func (e *Engine) Strlen(key string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return 0, nil
	}
	if ent.value.Kind != KindString {
		return 0, ErrWrongType
	}
	return len(ent.value.Str), nil
}

// clampRange resolves Redis-style inclusive start/stop indices (negative =
// from end) against a length, returning a half-open [from, to) slice range.
// If the resolved range is inverted, from==to==0 so callers get an empty
// result.
func clampRange(start, stop, length int) (from, to int) {
	if length == 0 {
		return 0, 0
	}
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop || start >= length {
		return 0, 0
	}
	return start, stop + 1
}

// GetRange returns the Redis-indexed inclusive substring [start, end] of the
// string at key, clamped to bounds; an inverted range yields "".
func (e *Engine) GetRange(key string, start, end int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return nil, nil
	}
	if ent.value.Kind != KindString {
		return nil, ErrWrongType
	}
	from, to := clampRange(start, end, len(ent.value.Str))
	out := make([]byte, to-from)
	copy(out, ent.value.Str[from:to])
	return out, nil
}

// SetRange overwrites the string at key starting at offset with value,
// zero-padding if offset extends past the current length, and returns the
// new total length. Creates the key if absent.
func (e *Engine) SetRange(key string, offset int, value []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(value) > 0 {
		if err := e.checkOOMLocked(); err != nil {
			return 0, err
		}
	}

	ent, found := e.lockedLookup(key)
	if !found {
		if len(value) == 0 {
			return 0, nil
		}
		buf := make([]byte, offset+len(value))
		copy(buf[offset:], value)
		e.data[key] = &entry{value: newStringValue(buf)}
		e.trackEntryLocked(key)
		return len(buf), nil
	}
	if ent.value.Kind != KindString {
		return 0, ErrWrongType
	}
	if len(value) == 0 {
		return len(ent.value.Str), nil
	}

	needed := offset + len(value)
	if needed > len(ent.value.Str) {
		grown := make([]byte, needed)
		copy(grown, ent.value.Str)
		ent.value.Str = grown
	}
	copy(ent.value.Str[offset:], value)
	e.trackEntryLocked(key)
	return len(ent.value.Str), nil
}
