package store

// SAdd adds members to the set at key, creating it if absent, and returns
// the number newly added (duplicates already present don't count).
func (e *Engine) SAdd(key string, members ...[]byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkOOMLocked(); err != nil {
		return 0, err
	}

	ent, found := e.lockedLookup(key)
	if !found {
		ent = &entry{value: newSetValue()}
		e.data[key] = ent
	} else if ent.value.Kind != KindSet {
		return 0, ErrWrongType
	}

	added := 0
	for _, m := range members {
		k := string(m)
		if _, ok := ent.value.Set[k]; !ok {
			ent.value.Set[k] = struct{}{}
			added++
		}
	}
	e.trackEntryLocked(key)
	return added, nil
}

// SMembers returns a copy of every member of the set at key, in unspecified
// order. A missing key behaves as an empty set.
func (e *Engine) SMembers(key string) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return nil, nil
	}
	if ent.value.Kind != KindSet {
		return nil, ErrWrongType
	}
	out := make([][]byte, 0, len(ent.value.Set))
	for m := range ent.value.Set {
		out = append(out, []byte(m))
	}
	return out, nil
}

// SIsMember reports whether member belongs to the set at key.
func (e *Engine) SIsMember(key string, member []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return false, nil
	}
	if ent.value.Kind != KindSet {
		return false, ErrWrongType
	}
	_, ok := ent.value.Set[string(member)]
	return ok, nil
}

// SCard returns the cardinality of the set at key, or 0 if missing.
func (e *Engine) SCard(key string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, found := e.lockedLookup(key)
	if !found {
		return 0, nil
	}
	if ent.value.Kind != KindSet {
		return 0, ErrWrongType
	}
	return len(ent.value.Set), nil
}

// setView reads the live set contents for key without mutating expiry
// state beyond normal lazy eviction. Caller must hold mu.
func (e *Engine) setView(key string) (map[string]struct{}, error) {
	ent, found := e.lockedLookup(key)
	if !found {
		return nil, nil // missing key is the empty set
	}
	if ent.value.Kind != KindSet {
		return nil, ErrWrongType
	}
	return ent.value.Set, nil
}

// SInter returns the intersection of the sets at keys. Any missing key
// makes the result empty.
func (e *Engine) SInter(keys ...string) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sets := make([]map[string]struct{}, len(keys))
	for i, k := range keys {
		s, err := e.setView(k)
		if err != nil {
			return nil, err
		}
		sets[i] = s
	}

	for _, s := range sets {
		if len(s) == 0 {
			return nil, nil
		}
	}

	var out [][]byte
	for m := range sets[0] {
		in := true
		for _, s := range sets[1:] {
			if _, ok := s[m]; !ok {
				in = false
				break
			}
		}
		if in {
			out = append(out, []byte(m))
		}
	}
	return out, nil
}

// SUnion returns the union of the sets at keys.
func (e *Engine) SUnion(keys ...string) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{})
	for _, k := range keys {
		s, err := e.setView(k)
		if err != nil {
			return nil, err
		}
		for m := range s {
			seen[m] = struct{}{}
		}
	}
	out := make([][]byte, 0, len(seen))
	for m := range seen {
		out = append(out, []byte(m))
	}
	return out, nil
}

// SDiff returns the members of the set at keys[0] not present in any of the
// remaining sets.
func (e *Engine) SDiff(keys ...string) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(keys) == 0 {
		return nil, nil
	}
	first, err := e.setView(keys[0])
	if err != nil {
		return nil, err
	}
	rest := make([]map[string]struct{}, 0, len(keys)-1)
	for _, k := range keys[1:] {
		s, err := e.setView(k)
		if err != nil {
			return nil, err
		}
		rest = append(rest, s)
	}

	out := make([][]byte, 0)
	for m := range first {
		excluded := false
		for _, s := range rest {
			if _, ok := s[m]; ok {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, []byte(m))
		}
	}
	return out, nil
}
