// Package table models the ACPI firmware structures the walker in
// kernel/acpi reads out of mapped physical memory. The layout of every
// record is an external ABI fixed by the ACPI specification, not an
// implementation choice. Structures whose fields all land on their natural
// alignment are viewed in place; the MADT substructures, whose packed
// layout a Go struct cannot reproduce, are instead decoded field-by-field
// at explicit offsets into the plain value types declared here.
package table

// RSDPDescriptor is the ACPI 1.0 root system descriptor pointer, the
// fixed-size structure the walker's signature scan looks for.
type RSDPDescriptor struct {
	// Signature must read "RSD PTR " (note the trailing space).
	Signature [8]byte

	// Checksum makes the sum of every byte in this descriptor 0 mod 256.
	Checksum uint8

	OEMID [6]byte

	// Revision is 0 for ACPI 1.0 and 2 for ACPI 2.0 through 6.x.
	Revision uint8

	// RSDTAddr is the 32-bit physical address of the RSDT.
	RSDTAddr uint32
}

// ExtRSDPDescriptor extends RSDPDescriptor with the fields ACPI 2.0+ adds;
// present whenever Revision > 0. Every field through ExtendedChecksum sits
// at its packed wire offset; Go only appends trailing padding, which is why
// checksum validation must trust Length rather than unsafe.Sizeof.
type ExtRSDPDescriptor struct {
	RSDPDescriptor

	// Length is the size in bytes of this extended descriptor.
	Length uint32

	// XSDTAddr is the 64-bit physical address of the XSDT.
	XSDTAddr uint64

	// ExtendedChecksum makes the sum of every byte in the extended
	// descriptor 0 mod 256.
	ExtendedChecksum uint8

	reserved [3]byte
}

// SDTHeader is the common header prefixing every ACPI table, including the
// RSDT/XSDT themselves.
type SDTHeader struct {
	// Signature identifies the table: "FACP" (FADT), "APIC" (MADT), "MCFG",
	// "XSDT", "RSDT", and so on.
	Signature [4]byte

	// Length is the total size of the table, header included.
	Length uint32

	Revision uint8

	// Checksum makes the sum of every byte in the table 0 mod 256.
	Checksum uint8

	OEMID       [6]byte
	OEMTableID  [8]byte
	OEMRevision uint32

	CreatorID       uint32
	CreatorRevision uint32
}

// AddressSpace identifies where a GenericAddress's register range lives.
type AddressSpace uint8

const (
	AddressSpaceSysMemory AddressSpace = iota
	AddressSpaceSysIO
	AddressSpacePCI
	AddressSpaceEmbController
	AddressSpaceSMBus
	AddressSpaceFuncFixedHW = 0x7f
)

// GenericAddress locates a register block within an AddressSpace.
type GenericAddress struct {
	Space      AddressSpace
	BitWidth   uint8
	BitOffset  uint8
	AccessSize uint8
	Address    uint64
}

// PowerProfileType is the FADT's declared system power profile.
type PowerProfileType uint8

const (
	PowerProfileUnspecified PowerProfileType = iota
	PowerProfileDesktop
	PowerProfileMobile
	PowerProfileWorkstation
	PowerProfileEnterpriseServer
	PowerProfileSOHOServer
	PowerProfileAppliancePC
	PowerProfilePerformanceServer
)

// FADT64 holds the 64-bit FADT fields ACPI 2.0+ adds alongside the original
// 32-bit ones.
type FADT64 struct {
	FirmwareControl uint64
	Dsdt            uint64

	PM1aEventBlock   GenericAddress
	PM1bEventBlock   GenericAddress
	PM1aControlBlock GenericAddress
	PM1bControlBlock GenericAddress
	PM2ControlBlock  GenericAddress
	PMTimerBlock     GenericAddress
	GPE0Block        GenericAddress
	GPE1Block        GenericAddress
}

// FADT (Fixed ACPI Description Table) describes the platform's fixed power
// management register blocks. Dsdt/Ext.Dsdt give the walker the DSDT
// address; kestrel reads only that field and otherwise treats FADT as an
// opaque cached singleton.
type FADT struct {
	SDTHeader

	FirmwareCtrl uint32
	Dsdt         uint32

	reserved uint8

	PreferredPowerManagementProfile PowerProfileType
	SCIInterrupt                    uint16
	SMICommandPort                  uint32
	AcpiEnable                      uint8
	AcpiDisable                     uint8
	S4BIOSReq                       uint8
	PSTATEControl                   uint8
	PM1aEventBlock                  uint32
	PM1bEventBlock                  uint32
	PM1aControlBlock                uint32
	PM1bControlBlock                uint32
	PM2ControlBlock                 uint32
	PMTimerBlock                    uint32
	GPE0Block                       uint32
	GPE1Block                       uint32
	PM1EventLength                  uint8
	PM1ControlLength                uint8
	PM2ControlLength                uint8
	PMTimerLength                   uint8
	GPE0Length                      uint8
	GPE1Length                      uint8
	GPE1Base                        uint8
	CStateControl                   uint8
	WorstC2Latency                  uint16
	WorstC3Latency                  uint16
	FlushSize                       uint16
	FlushStride                     uint16
	DutyOffset                      uint8
	DutyWidth                       uint8
	DayAlarm                        uint8
	MonthAlarm                      uint8
	Century                         uint8

	// BootArchitectureFlags is reserved in ACPI 1.0, used from 2.0 on.
	BootArchitectureFlags uint16

	reserved2 uint8
	Flags     uint32

	ResetReg GenericAddress

	ResetValue uint8
	reserved3  [3]uint8

	Ext FADT64
}

// MADT (Multiple APIC Description Table) is followed by a variable-length
// stream of packed substructure records; LocalControllerAddress is the
// physical address of every CPU's local APIC unless overridden per-entry.
type MADT struct {
	SDTHeader

	LocalControllerAddress uint32
	Flags                  uint32
}

// MADTEntryType distinguishes the variable-length records trailing a MADT.
// Every record starts with a type byte and a length byte; the length lets
// the iterators skip record types this core does not decode.
type MADTEntryType uint8

const (
	MADTEntryTypeLocalAPIC MADTEntryType = iota
	MADTEntryTypeIOAPIC
	MADTEntryTypeIntSrcOverride
)

// The MADT substructures are packed records whose multi-byte fields sit at
// offsets a native Go struct would pad (an I/O APIC entry keeps its address
// at byte 4, right after two single-byte fields and the two-byte prefix).
// The types below are therefore plain decoded values, never overlaid on
// firmware memory: kernel/acpi assembles each field with explicit
// little-endian reads at the offset noted on it, counted from the start of
// the record.

// MADTEntryLocalAPIC (type 0, 8 bytes) names one processor and its local
// APIC ID.
type MADTEntryLocalAPIC struct {
	ProcessorID uint8  // offset 2
	APICID      uint8  // offset 3
	Flags       uint32 // offset 4
}

// MADTEntryIOAPIC (type 1, 12 bytes) describes one I/O APIC and the first
// global system interrupt it owns.
type MADTEntryIOAPIC struct {
	APICID           uint8  // offset 2; offset 3 is reserved
	Address          uint32 // offset 4
	SysInterruptBase uint32 // offset 8
}

// MADTEntryInterruptSrcOverride (type 2, 10 bytes) remaps a legacy ISA IRQ
// onto a different global system interrupt.
type MADTEntryInterruptSrcOverride struct {
	BusSrc          uint8  // offset 2
	IRQSrc          uint8  // offset 3
	GlobalInterrupt uint32 // offset 4
	Flags           uint16 // offset 8
}

// MCFG (PCI Express memory-mapped configuration table) is followed by a
// flat array of MCFGAllocation records, one per PCI segment group. On the
// wire the header is 44 bytes (reserved sits at offset 36); Go aligns
// reserved to offset 40 and pads the struct to 48, so only the SDTHeader
// fields are read through this view and the walker locates the allocation
// array by the packed size.
type MCFG struct {
	SDTHeader

	reserved uint64
}

// MCFGAllocation describes the ECAM base address for one PCI segment
// group's bus range. Unlike the MADT records, every field here lands on
// its natural alignment, so the Go layout matches the packed record
// byte-for-byte and the walker may view it in place.
type MCFGAllocation struct {
	BaseAddress  uint64
	SegmentGroup uint16
	StartBus     uint8
	EndBus       uint8
	reserved     uint32
}
