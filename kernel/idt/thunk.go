package idt

import (
	"encoding/binary"
	"kestrel/kernel/layout"
	"unsafe"
)

// thunkSize is the fixed size of each generated per-vector thunk: NOP; PUSH imm8; JMP rel32.
const thunkSize = 8

const (
	opNop     = 0x90
	opPushImm = 0x6A
	opJmpRel  = 0xE9
)

// commonDispatcherAddr and specialDispatcherAddr return the linear address
// of the two dispatcher entry points built in dispatch_amd64.s, so the
// thunk builder can compute each JMP's rel32 displacement.
func commonDispatcherAddr() uintptr
func specialDispatcherAddr() uintptr

// thunkTable returns a byte view over the fixed physical thunk region.
func thunkTable() []byte {
	base := uintptr(layout.ThunkTableAddr) + backingOffset
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), layout.ThunkTableSize)
}

// buildThunks writes all 256 thunks: each one pushes its own
// vector number then jumps to the special dispatcher if the vector is one
// of the six CPU exceptions that push an error code, or the common
// dispatcher otherwise.
func buildThunks() {
	table := thunkTable()
	common := commonDispatcherAddr() + backingOffset
	special := specialDispatcherAddr() + backingOffset

	for v := 0; v < vectorCount; v++ {
		thunkAddr := uintptr(layout.ThunkTableAddr) + backingOffset + uintptr(v)*thunkSize
		target := common
		if hasErrorCode(Vector(v)) {
			target = special
		}
		writeThunk(table[v*thunkSize:v*thunkSize+thunkSize], thunkAddr, byte(v), target)
	}
}

// writeThunk encodes one 8-byte thunk at thunkAddr into dst, patching the
// PUSH's imm8 to vector and the JMP's rel32 to target, computed relative to
// the first byte after the JMP instruction (thunkAddr+thunkSize).
func writeThunk(dst []byte, thunkAddr uintptr, vector byte, target uintptr) {
	dst[0] = opNop
	dst[1] = opPushImm
	dst[2] = vector
	dst[3] = opJmpRel

	rel := int32(int64(target) - int64(thunkAddr+thunkSize))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(rel))
}
