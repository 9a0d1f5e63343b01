package idt

// Build constructs the thunk table and the IDT without touching any
// privileged instruction (no PIC programming, no LIDT): everything Init
// does except picInit and loadIDT. It exists so host-side tooling
// (cmd/kdiag) and tests can exercise the generator logic in an ordinary
// process, where executing OUT or LIDT would fault.
func Build() {
	buildThunks()
	buildIDT()
}

// ThunkBytes returns a copy of the generated thunk table, valid after
// Build or Init.
func ThunkBytes() []byte {
	table := thunkTable()
	out := make([]byte, len(table))
	copy(out, table)
	return out
}

// ThunkSize is the fixed size in bytes of one vector's generated thunk.
const ThunkSize = thunkSize

// VectorCount is the fixed size of the IDT, the ISR table and the thunk
// table.
const VectorCount = vectorCount

// Descriptor is the host-readable view of one IDT gate, returned by
// Descriptors for diagnostic dumps.
type Descriptor struct {
	Vector   Vector
	Offset   uintptr
	Selector uint16
	IST      uint8
	TypeAttr uint8
}

// Descriptors returns every IDT entry in vector order, valid after Build
// or Init.
func Descriptors() []Descriptor {
	table := idtTable()
	out := make([]Descriptor, vectorCount)
	for v := range table {
		e := table[v]
		out[v] = Descriptor{
			Vector:   Vector(v),
			Offset:   uintptr(e.offsetLow) | uintptr(e.offsetMid)<<16 | uintptr(e.offsetHigh)<<32,
			Selector: e.selector,
			IST:      e.ist,
			TypeAttr: e.typeAttr,
		}
	}
	return out
}
