package slot

import "testing"

// Known-answer tests against the published Redis Cluster CRC16 table values.
func TestCRC16KnownVectors(t *testing.T) {
	cases := []struct {
		in   string
		want uint16
	}{
		{"", 0x0000},
		{"123456789", 0x31C3},
		{"sky", 0xB936},
	}
	for _, c := range cases {
		if got := crc16([]byte(c.in)); got != c.want {
			t.Errorf("crc16(%q) = %#04x, want %#04x", c.in, got, c.want)
		}
	}
}

func TestOfIsBounded(t *testing.T) {
	for _, k := range []string{"", "a", "foo{bar}baz", "{}"} {
		if s := Of([]byte(k)); s >= Count {
			t.Errorf("Of(%q) = %d, out of range", k, s)
		}
	}
}

func TestHashtagGroupsKeys(t *testing.T) {
	a := Of([]byte("user:{1000}.following"))
	b := Of([]byte("user:{1000}.followers"))
	if a != b {
		t.Errorf("hashtag keys should share a slot: %d != %d", a, b)
	}
}

func TestHashtagEmptyFallsBackToWholeKey(t *testing.T) {
	// "{}" has no non-empty hashtag substring, so the whole key is hashed.
	withEmptyTag := Of([]byte("foo{}bar"))
	whole := crc16([]byte("foo{}bar")) % Count
	if withEmptyTag != whole {
		t.Errorf("empty hashtag should not change slot computation")
	}
}

func TestSameSlot(t *testing.T) {
	keys := [][]byte{[]byte("{grp}a"), []byte("{grp}b")}
	if _, ok := SameSlot(keys); !ok {
		t.Errorf("expected keys sharing a hashtag to share a slot")
	}
	cross := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	if _, ok := SameSlot(cross); ok {
		// Extremely unlikely but not impossible for arbitrary keys to collide;
		// for these three fixed literals we know they land on different slots.
		t.Skip("keys happened to collide; not a hashtag guarantee")
	}
}
