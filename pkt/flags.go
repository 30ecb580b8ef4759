// Package pkt implements the filter session's Packet type (§4.2): a
// reference-counted unit of data flow carrying one of four payload
// variants, packet-info timing, and a flag word.
//
// Grounded on the teacher's transport.Obj (transport/api.go): a reader +
// header + optional callback object, with a private `prc *atomic.Int64`
// refcount so a stream-fanout callback fires exactly once across every
// destination. gofilt's Packet generalizes that single-refcount-per-object
// idea to four payload kinds and a much richer packet-info header, and
// reuses the same "refcount decrements to zero, then release" lifecycle.
/*
 * Copyright (c) 2018-2022, NVIDIA CORPORATION. All rights reserved.
 */
package pkt

// CmdKind occupies 2 bits of Flags: none, pid-EOS, pid-remove (§4.2).
type CmdKind uint32

const (
	CmdNone CmdKind = iota
	CmdPidEOS
	CmdPidRemove
)

// SAPType is the 3-bit stream-access-point classification (0-3 used; 4-7
// reserved) carried in Flags.
type SAPType uint32

const (
	SAPNone SAPType = iota
	SAPClosedGOP
	SAPOpenGOP
	SAPNonRefreshing
)

// Flags is the packet-info flag word (§4.2): block boundaries, corruption,
// seek, SAP type, interlacing, clock-reference/crypt state, command kind,
// main-thread affinity, and dependency hints.
type Flags uint32

const (
	FlagBlockStart Flags = 1 << iota
	FlagBlockEnd
	FlagCorrupted
	FlagSeek
	flagSAPBit0 // 3-bit SAP type occupies bits 4-6
	flagSAPBit1
	flagSAPBit2
	FlagInterlacedTop
	FlagInterlacedBottom
	FlagClockRef
	FlagCrypt
	flagCmdBit0 // 2-bit command kind occupies bits 11-12
	flagCmdBit1
	FlagForceMainThread
	FlagLeading
	FlagDependsOn
	FlagDependedOn
	FlagRedundant
)

const sapMask = flagSAPBit0 | flagSAPBit1 | flagSAPBit2
const cmdMask = flagCmdBit0 | flagCmdBit1

func (f Flags) SAP() SAPType { return SAPType((f & sapMask) >> 4) }

func (f Flags) WithSAP(s SAPType) Flags {
	return (f &^ sapMask) | Flags(s<<4)&sapMask
}

func (f Flags) Cmd() CmdKind { return CmdKind((f & cmdMask) >> 11) }

func (f Flags) WithCmd(c CmdKind) Flags {
	return (f &^ cmdMask) | Flags(c<<11)&cmdMask
}

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) Set(bit Flags) Flags   { return f | bit }
func (f Flags) Clear(bit Flags) Flags { return f &^ bit }
