package parallel

import (
	"sync"
	"testing"
)

func TestBitmask_SetTest(t *testing.T) {
	m := NewBitmask(130)

	if m.Set(0) {
		t.Error("bit 0 reported set before Set")
	}
	if !m.Set(0) {
		t.Error("second Set(0) should report the bit was set")
	}
	m.Set(64)
	m.Set(129)

	for _, i := range []uint32{0, 64, 129} {
		if !m.Test(i) {
			t.Errorf("Test(%d) = false", i)
		}
	}
	if m.Test(1) || m.Test(128) {
		t.Error("unset bits reported set")
	}
	if got := m.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}

	// Out of range.
	if !m.Set(130) {
		t.Error("out-of-range Set should report set")
	}
	if m.Test(500) {
		t.Error("out-of-range Test should be false")
	}

	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear = %d", m.Count())
	}
}

func TestBitmask_ConcurrentSetExactlyOnce(t *testing.T) {
	m := NewBitmask(1024)

	var wg sync.WaitGroup
	winners := make([]int, 8)
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range uint32(1024) {
				if !m.Set(i) {
					winners[w]++
				}
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, n := range winners {
		total += n
	}
	if total != 1024 {
		t.Errorf("first-setters = %d, want 1024", total)
	}
}

func TestBitmask_GrowAndWords(t *testing.T) {
	m := NewBitmask(40)
	m.Set(33)

	if m.Grow(40) {
		t.Error("Grow to the same size must not reallocate")
	}
	if !m.Test(33) {
		t.Error("bit lost without reallocation")
	}

	words := m.Words()
	if len(words) != 2 || words[1] != 1<<1 {
		t.Errorf("Words() = %v, want [0 2]", words)
	}

	if !m.Grow(200) {
		t.Error("Grow past the length must reallocate")
	}
	if m.Len() != 200 || m.Count() != 0 {
		t.Errorf("after Grow: Len=%d Count=%d", m.Len(), m.Count())
	}

	m.Set(3)
	m.Set(150)
	var got []uint32
	m.ForEach(func(i uint32) { got = append(got, i) })
	if len(got) != 2 || got[0] != 3 || got[1] != 150 {
		t.Errorf("ForEach visited %v", got)
	}
}
