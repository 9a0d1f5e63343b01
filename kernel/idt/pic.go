package idt

import "kestrel/kernel/cpu"

// 8259 PIC I/O ports and the fixed vector offsets this core programs them
// with: IRQs 0-7 land on vectors 0x20-0x27, IRQs 8-15 on
// 0x28-0x2F, clear of the CPU exception vectors below 0x20.
const (
	masterCommandPort = 0x20
	masterDataPort    = 0x21
	slaveCommandPort  = 0xA0
	slaveDataPort     = 0xA1

	icw1Init          = 0x11 // edge-triggered, cascade mode, ICW4 present
	masterOffset      = 0x20
	slaveOffset       = 0x28
	masterCascadeLine = 0x04 // IRQ2 carries the slave's cascade signal
	slaveCascadeID    = 0x02
	icw4_8086         = 0x01

	cascadeIRQ = 2
)

// picInit programs both PICs with the offsets above and masks every line,
// leaving Enable to unmask what the rest of the system wires up.
func picInit() {
	cpu.OutB(masterCommandPort, icw1Init)
	cpu.OutB(slaveCommandPort, icw1Init)

	cpu.OutB(masterDataPort, masterOffset)
	cpu.OutB(slaveDataPort, slaveOffset)

	cpu.OutB(masterDataPort, masterCascadeLine)
	cpu.OutB(slaveDataPort, slaveCascadeID)

	cpu.OutB(masterDataPort, icw4_8086)
	cpu.OutB(slaveDataPort, icw4_8086)

	cpu.OutB(masterDataPort, 0xFF)
	cpu.OutB(slaveDataPort, 0xFF)
}

// Enable unmasks IRQ n. Unmasking any slave line (n>=8)
// first recursively unmasks IRQ2 on the master, since the slave PIC's
// output is wired through that cascade line.
func Enable(n uint8) {
	if n >= 8 {
		Enable(cascadeIRQ)
		setMask(slaveDataPort, n-8, false)
		return
	}
	setMask(masterDataPort, n, false)
}

// Disable masks IRQ n.
func Disable(n uint8) {
	if n >= 8 {
		setMask(slaveDataPort, n-8, true)
		return
	}
	setMask(masterDataPort, n, true)
}

func setMask(port uint16, line uint8, masked bool) {
	mask := cpu.InB(port)
	if masked {
		mask |= 1 << line
	} else {
		mask &^= 1 << line
	}
	cpu.OutB(port, mask)
}

// EOI acknowledges an interrupt to the PIC(s). The dispatcher does not call
// this itself;
// a registered Handler is responsible for calling it once it has serviced
// the device.
func EOI(n uint8) {
	if n >= 8 {
		cpu.OutB(slaveCommandPort, 0x20)
	}
	cpu.OutB(masterCommandPort, 0x20)
}
