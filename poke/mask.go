package poke

// mask records which sub-regions of a builder are initialized, and in what
// order, so teardown can run in reverse initialization order.
type mask struct {
	bits  []uint64
	order []int
}

func newMask(n int) mask {
	return mask{bits: make([]uint64, (n+63)/64)}
}

// set marks i. Marking an already marked index is a no-op.
func (m *mask) set(i int) {
	if m.has(i) {
		return
	}
	word := i / 64
	if word >= len(m.bits) {
		grown := make([]uint64, word+1)
		copy(grown, m.bits)
		m.bits = grown
	}
	m.bits[word] |= 1 << (uint(i) % 64)
	m.order = append(m.order, i)
}

func (m *mask) clear(i int) {
	if !m.has(i) {
		return
	}
	m.bits[i/64] &^= 1 << (uint(i) % 64)
	for j, v := range m.order {
		if v == i {
			m.order = append(m.order[:j], m.order[j+1:]...)
			break
		}
	}
}

func (m *mask) has(i int) bool {
	word := i / 64
	if i < 0 || word >= len(m.bits) {
		return false
	}
	return m.bits[word]&(1<<(uint(i)%64)) != 0
}

func (m *mask) count() int {
	return len(m.order)
}

// reset clears every mark, keeping capacity.
func (m *mask) reset() {
	for i := range m.bits {
		m.bits[i] = 0
	}
	m.order = m.order[:0]
}

// reversed returns marked indices, most recently initialized first.
func (m *mask) reversed() []int {
	out := make([]int, len(m.order))
	for i, v := range m.order {
		out[len(out)-1-i] = v
	}
	return out
}
