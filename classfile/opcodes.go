package classfile

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single JVM bytecode instruction.
type Opcode byte

// Constants
const (
	OpNop        Opcode = 0x00 // no operation
	OpAconstNull Opcode = 0x01 // push null
	OpIconstM1   Opcode = 0x02 // push int -1
	OpIconst0    Opcode = 0x03
	OpIconst1    Opcode = 0x04
	OpIconst2    Opcode = 0x05
	OpIconst3    Opcode = 0x06
	OpIconst4    Opcode = 0x07
	OpIconst5    Opcode = 0x08
	OpLconst0    Opcode = 0x09
	OpLconst1    Opcode = 0x0A
	OpFconst0    Opcode = 0x0B
	OpFconst1    Opcode = 0x0C
	OpFconst2    Opcode = 0x0D
	OpDconst0    Opcode = 0x0E
	OpDconst1    Opcode = 0x0F
	OpBipush     Opcode = 0x10 // push signed byte
	OpSipush     Opcode = 0x11 // push signed short
	OpLdc        Opcode = 0x12 // push constant (8-bit pool index)
	OpLdcW       Opcode = 0x13 // push constant (16-bit pool index)
	OpLdc2W      Opcode = 0x14 // push long/double constant
)

// Loads
const (
	OpIload  Opcode = 0x15
	OpLload  Opcode = 0x16
	OpFload  Opcode = 0x17
	OpDload  Opcode = 0x18
	OpAload  Opcode = 0x19
	OpIload0 Opcode = 0x1A
	OpIload1 Opcode = 0x1B
	OpIload2 Opcode = 0x1C
	OpIload3 Opcode = 0x1D
	OpLload0 Opcode = 0x1E
	OpLload1 Opcode = 0x1F
	OpLload2 Opcode = 0x20
	OpLload3 Opcode = 0x21
	OpFload0 Opcode = 0x22
	OpFload1 Opcode = 0x23
	OpFload2 Opcode = 0x24
	OpFload3 Opcode = 0x25
	OpDload0 Opcode = 0x26
	OpDload1 Opcode = 0x27
	OpDload2 Opcode = 0x28
	OpDload3 Opcode = 0x29
	OpAload0 Opcode = 0x2A
	OpAload1 Opcode = 0x2B
	OpAload2 Opcode = 0x2C
	OpAload3 Opcode = 0x2D
	OpIaload Opcode = 0x2E
	OpLaload Opcode = 0x2F
	OpFaload Opcode = 0x30
	OpDaload Opcode = 0x31
	OpAaload Opcode = 0x32
	OpBaload Opcode = 0x33
	OpCaload Opcode = 0x34
	OpSaload Opcode = 0x35
)

// Stores
const (
	OpIstore  Opcode = 0x36
	OpLstore  Opcode = 0x37
	OpFstore  Opcode = 0x38
	OpDstore  Opcode = 0x39
	OpAstore  Opcode = 0x3A
	OpIstore0 Opcode = 0x3B
	OpIstore1 Opcode = 0x3C
	OpIstore2 Opcode = 0x3D
	OpIstore3 Opcode = 0x3E
	OpLstore0 Opcode = 0x3F
	OpLstore1 Opcode = 0x40
	OpLstore2 Opcode = 0x41
	OpLstore3 Opcode = 0x42
	OpFstore0 Opcode = 0x43
	OpFstore1 Opcode = 0x44
	OpFstore2 Opcode = 0x45
	OpFstore3 Opcode = 0x46
	OpDstore0 Opcode = 0x47
	OpDstore1 Opcode = 0x48
	OpDstore2 Opcode = 0x49
	OpDstore3 Opcode = 0x4A
	OpAstore0 Opcode = 0x4B
	OpAstore1 Opcode = 0x4C
	OpAstore2 Opcode = 0x4D
	OpAstore3 Opcode = 0x4E
	OpIastore Opcode = 0x4F
	OpLastore Opcode = 0x50
	OpFastore Opcode = 0x51
	OpDastore Opcode = 0x52
	OpAastore Opcode = 0x53
	OpBastore Opcode = 0x54
	OpCastore Opcode = 0x55
	OpSastore Opcode = 0x56
)

// Stack
const (
	OpPop    Opcode = 0x57
	OpPop2   Opcode = 0x58
	OpDup    Opcode = 0x59
	OpDupX1  Opcode = 0x5A
	OpDupX2  Opcode = 0x5B
	OpDup2   Opcode = 0x5C
	OpDup2X1 Opcode = 0x5D
	OpDup2X2 Opcode = 0x5E
	OpSwap   Opcode = 0x5F
)

// Math
const (
	OpIadd  Opcode = 0x60
	OpLadd  Opcode = 0x61
	OpFadd  Opcode = 0x62
	OpDadd  Opcode = 0x63
	OpIsub  Opcode = 0x64
	OpLsub  Opcode = 0x65
	OpFsub  Opcode = 0x66
	OpDsub  Opcode = 0x67
	OpImul  Opcode = 0x68
	OpLmul  Opcode = 0x69
	OpFmul  Opcode = 0x6A
	OpDmul  Opcode = 0x6B
	OpIdiv  Opcode = 0x6C
	OpLdiv  Opcode = 0x6D
	OpFdiv  Opcode = 0x6E
	OpDdiv  Opcode = 0x6F
	OpIrem  Opcode = 0x70
	OpLrem  Opcode = 0x71
	OpFrem  Opcode = 0x72
	OpDrem  Opcode = 0x73
	OpIneg  Opcode = 0x74
	OpLneg  Opcode = 0x75
	OpFneg  Opcode = 0x76
	OpDneg  Opcode = 0x77
	OpIshl  Opcode = 0x78
	OpLshl  Opcode = 0x79
	OpIshr  Opcode = 0x7A
	OpLshr  Opcode = 0x7B
	OpIushr Opcode = 0x7C
	OpLushr Opcode = 0x7D
	OpIand  Opcode = 0x7E
	OpLand  Opcode = 0x7F
	OpIor   Opcode = 0x80
	OpLor   Opcode = 0x81
	OpIxor  Opcode = 0x82
	OpLxor  Opcode = 0x83
	OpIinc  Opcode = 0x84 // increment local (index, signed constant)
)

// Conversions
const (
	OpI2l Opcode = 0x85
	OpI2f Opcode = 0x86
	OpI2d Opcode = 0x87
	OpL2i Opcode = 0x88
	OpL2f Opcode = 0x89
	OpL2d Opcode = 0x8A
	OpF2i Opcode = 0x8B
	OpF2l Opcode = 0x8C
	OpF2d Opcode = 0x8D
	OpD2i Opcode = 0x8E
	OpD2l Opcode = 0x8F
	OpD2f Opcode = 0x90
	OpI2b Opcode = 0x91
	OpI2c Opcode = 0x92
	OpI2s Opcode = 0x93
)

// Comparisons
const (
	OpLcmp     Opcode = 0x94
	OpFcmpl    Opcode = 0x95
	OpFcmpg    Opcode = 0x96
	OpDcmpl    Opcode = 0x97
	OpDcmpg    Opcode = 0x98
	OpIfeq     Opcode = 0x99
	OpIfne     Opcode = 0x9A
	OpIflt     Opcode = 0x9B
	OpIfge     Opcode = 0x9C
	OpIfgt     Opcode = 0x9D
	OpIfle     Opcode = 0x9E
	OpIfIcmpeq Opcode = 0x9F
	OpIfIcmpne Opcode = 0xA0
	OpIfIcmplt Opcode = 0xA1
	OpIfIcmpge Opcode = 0xA2
	OpIfIcmpgt Opcode = 0xA3
	OpIfIcmple Opcode = 0xA4
	OpIfAcmpeq Opcode = 0xA5
	OpIfAcmpne Opcode = 0xA6
)

// Control
const (
	OpGoto         Opcode = 0xA7 // unconditional jump (16-bit offset)
	OpJsr          Opcode = 0xA8 // jump to subroutine, push return address
	OpRet          Opcode = 0xA9 // return from subroutine (local index)
	OpTableswitch  Opcode = 0xAA
	OpLookupswitch Opcode = 0xAB
	OpIreturn      Opcode = 0xAC
	OpLreturn      Opcode = 0xAD
	OpFreturn      Opcode = 0xAE
	OpDreturn      Opcode = 0xAF
	OpAreturn      Opcode = 0xB0
	OpReturn       Opcode = 0xB1 // void return
)

// References
const (
	OpGetstatic       Opcode = 0xB2
	OpPutstatic       Opcode = 0xB3
	OpGetfield        Opcode = 0xB4
	OpPutfield        Opcode = 0xB5
	OpInvokevirtual   Opcode = 0xB6
	OpInvokespecial   Opcode = 0xB7
	OpInvokestatic    Opcode = 0xB8
	OpInvokeinterface Opcode = 0xB9
	OpInvokedynamic   Opcode = 0xBA
	OpNew             Opcode = 0xBB
	OpNewarray        Opcode = 0xBC // primitive array (element code)
	OpAnewarray       Opcode = 0xBD // reference array (class index)
	OpArraylength     Opcode = 0xBE
	OpAthrow          Opcode = 0xBF
	OpCheckcast       Opcode = 0xC0
	OpInstanceof      Opcode = 0xC1
	OpMonitorenter    Opcode = 0xC2
	OpMonitorexit     Opcode = 0xC3
)

// Extended
const (
	OpWide           Opcode = 0xC4 // widen the following local-variable instruction
	OpMultianewarray Opcode = 0xC5
	OpIfnull         Opcode = 0xC6
	OpIfnonnull      Opcode = 0xC7
	OpGotoW          Opcode = 0xC8 // unconditional jump (32-bit offset)
	OpJsrW           Opcode = 0xC9 // jump to subroutine (32-bit offset)
)

// Element codes used by newarray.
const (
	ArrayBoolean byte = 4
	ArrayChar    byte = 5
	ArrayFloat   byte = 6
	ArrayDouble  byte = 7
	ArrayByte    byte = 8
	ArrayShort   byte = 9
	ArrayInt     byte = 10
	ArrayLong    byte = 11
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// Format describes how an opcode's operands are laid out in the code array.
type Format uint8

const (
	FormatNone            Format = iota // no operands
	FormatByte                          // signed 8-bit immediate
	FormatShort                         // signed 16-bit immediate
	FormatLocal                         // unsigned 8-bit local index (16-bit under wide)
	FormatConst8                        // unsigned 8-bit pool index
	FormatConst16                       // unsigned 16-bit pool index
	FormatBranch                        // signed 16-bit branch offset
	FormatBranchWide                    // signed 32-bit branch offset
	FormatIinc                          // local index + signed immediate
	FormatTableSwitch                   // padded jump table
	FormatLookupSwitch                  // padded match/offset pairs
	FormatInvokeInterface               // pool index, count, zero
	FormatInvokeDynamic                 // pool index, zero, zero
	FormatNewArray                      // element code
	FormatMultiANewArray                // pool index, dimensions
	FormatWide                          // prefix
)

// Variable marks a stack effect that depends on the constant pool or operands.
const Variable = -1

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name   string // mnemonic
	Format Format // operand layout
	Pop    int    // stack slots consumed (Variable if operand dependent)
	Push   int    // stack slots produced (Variable if operand dependent)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Constants
	OpNop:        {"nop", FormatNone, 0, 0},
	OpAconstNull: {"aconst_null", FormatNone, 0, 1},
	OpIconstM1:   {"iconst_m1", FormatNone, 0, 1},
	OpIconst0:    {"iconst_0", FormatNone, 0, 1},
	OpIconst1:    {"iconst_1", FormatNone, 0, 1},
	OpIconst2:    {"iconst_2", FormatNone, 0, 1},
	OpIconst3:    {"iconst_3", FormatNone, 0, 1},
	OpIconst4:    {"iconst_4", FormatNone, 0, 1},
	OpIconst5:    {"iconst_5", FormatNone, 0, 1},
	OpLconst0:    {"lconst_0", FormatNone, 0, 2},
	OpLconst1:    {"lconst_1", FormatNone, 0, 2},
	OpFconst0:    {"fconst_0", FormatNone, 0, 1},
	OpFconst1:    {"fconst_1", FormatNone, 0, 1},
	OpFconst2:    {"fconst_2", FormatNone, 0, 1},
	OpDconst0:    {"dconst_0", FormatNone, 0, 2},
	OpDconst1:    {"dconst_1", FormatNone, 0, 2},
	OpBipush:     {"bipush", FormatByte, 0, 1},
	OpSipush:     {"sipush", FormatShort, 0, 1},
	OpLdc:        {"ldc", FormatConst8, 0, 1},
	OpLdcW:       {"ldc_w", FormatConst16, 0, 1},
	OpLdc2W:      {"ldc2_w", FormatConst16, 0, 2},

	// Loads
	OpIload:  {"iload", FormatLocal, 0, 1},
	OpLload:  {"lload", FormatLocal, 0, 2},
	OpFload:  {"fload", FormatLocal, 0, 1},
	OpDload:  {"dload", FormatLocal, 0, 2},
	OpAload:  {"aload", FormatLocal, 0, 1},
	OpIload0: {"iload_0", FormatNone, 0, 1},
	OpIload1: {"iload_1", FormatNone, 0, 1},
	OpIload2: {"iload_2", FormatNone, 0, 1},
	OpIload3: {"iload_3", FormatNone, 0, 1},
	OpLload0: {"lload_0", FormatNone, 0, 2},
	OpLload1: {"lload_1", FormatNone, 0, 2},
	OpLload2: {"lload_2", FormatNone, 0, 2},
	OpLload3: {"lload_3", FormatNone, 0, 2},
	OpFload0: {"fload_0", FormatNone, 0, 1},
	OpFload1: {"fload_1", FormatNone, 0, 1},
	OpFload2: {"fload_2", FormatNone, 0, 1},
	OpFload3: {"fload_3", FormatNone, 0, 1},
	OpDload0: {"dload_0", FormatNone, 0, 2},
	OpDload1: {"dload_1", FormatNone, 0, 2},
	OpDload2: {"dload_2", FormatNone, 0, 2},
	OpDload3: {"dload_3", FormatNone, 0, 2},
	OpAload0: {"aload_0", FormatNone, 0, 1},
	OpAload1: {"aload_1", FormatNone, 0, 1},
	OpAload2: {"aload_2", FormatNone, 0, 1},
	OpAload3: {"aload_3", FormatNone, 0, 1},
	OpIaload: {"iaload", FormatNone, 2, 1},
	OpLaload: {"laload", FormatNone, 2, 2},
	OpFaload: {"faload", FormatNone, 2, 1},
	OpDaload: {"daload", FormatNone, 2, 2},
	OpAaload: {"aaload", FormatNone, 2, 1},
	OpBaload: {"baload", FormatNone, 2, 1},
	OpCaload: {"caload", FormatNone, 2, 1},
	OpSaload: {"saload", FormatNone, 2, 1},

	// Stores
	OpIstore:  {"istore", FormatLocal, 1, 0},
	OpLstore:  {"lstore", FormatLocal, 2, 0},
	OpFstore:  {"fstore", FormatLocal, 1, 0},
	OpDstore:  {"dstore", FormatLocal, 2, 0},
	OpAstore:  {"astore", FormatLocal, 1, 0},
	OpIstore0: {"istore_0", FormatNone, 1, 0},
	OpIstore1: {"istore_1", FormatNone, 1, 0},
	OpIstore2: {"istore_2", FormatNone, 1, 0},
	OpIstore3: {"istore_3", FormatNone, 1, 0},
	OpLstore0: {"lstore_0", FormatNone, 2, 0},
	OpLstore1: {"lstore_1", FormatNone, 2, 0},
	OpLstore2: {"lstore_2", FormatNone, 2, 0},
	OpLstore3: {"lstore_3", FormatNone, 2, 0},
	OpFstore0: {"fstore_0", FormatNone, 1, 0},
	OpFstore1: {"fstore_1", FormatNone, 1, 0},
	OpFstore2: {"fstore_2", FormatNone, 1, 0},
	OpFstore3: {"fstore_3", FormatNone, 1, 0},
	OpDstore0: {"dstore_0", FormatNone, 2, 0},
	OpDstore1: {"dstore_1", FormatNone, 2, 0},
	OpDstore2: {"dstore_2", FormatNone, 2, 0},
	OpDstore3: {"dstore_3", FormatNone, 2, 0},
	OpAstore0: {"astore_0", FormatNone, 1, 0},
	OpAstore1: {"astore_1", FormatNone, 1, 0},
	OpAstore2: {"astore_2", FormatNone, 1, 0},
	OpAstore3: {"astore_3", FormatNone, 1, 0},
	OpIastore: {"iastore", FormatNone, 3, 0},
	OpLastore: {"lastore", FormatNone, 4, 0},
	OpFastore: {"fastore", FormatNone, 3, 0},
	OpDastore: {"dastore", FormatNone, 4, 0},
	OpAastore: {"aastore", FormatNone, 3, 0},
	OpBastore: {"bastore", FormatNone, 3, 0},
	OpCastore: {"castore", FormatNone, 3, 0},
	OpSastore: {"sastore", FormatNone, 3, 0},

	// Stack
	OpPop:    {"pop", FormatNone, 1, 0},
	OpPop2:   {"pop2", FormatNone, 2, 0},
	OpDup:    {"dup", FormatNone, 1, 2},
	OpDupX1:  {"dup_x1", FormatNone, 2, 3},
	OpDupX2:  {"dup_x2", FormatNone, 3, 4},
	OpDup2:   {"dup2", FormatNone, 2, 4},
	OpDup2X1: {"dup2_x1", FormatNone, 3, 5},
	OpDup2X2: {"dup2_x2", FormatNone, 4, 6},
	OpSwap:   {"swap", FormatNone, 2, 2},

	// Math
	OpIadd:  {"iadd", FormatNone, 2, 1},
	OpLadd:  {"ladd", FormatNone, 4, 2},
	OpFadd:  {"fadd", FormatNone, 2, 1},
	OpDadd:  {"dadd", FormatNone, 4, 2},
	OpIsub:  {"isub", FormatNone, 2, 1},
	OpLsub:  {"lsub", FormatNone, 4, 2},
	OpFsub:  {"fsub", FormatNone, 2, 1},
	OpDsub:  {"dsub", FormatNone, 4, 2},
	OpImul:  {"imul", FormatNone, 2, 1},
	OpLmul:  {"lmul", FormatNone, 4, 2},
	OpFmul:  {"fmul", FormatNone, 2, 1},
	OpDmul:  {"dmul", FormatNone, 4, 2},
	OpIdiv:  {"idiv", FormatNone, 2, 1},
	OpLdiv:  {"ldiv", FormatNone, 4, 2},
	OpFdiv:  {"fdiv", FormatNone, 2, 1},
	OpDdiv:  {"ddiv", FormatNone, 4, 2},
	OpIrem:  {"irem", FormatNone, 2, 1},
	OpLrem:  {"lrem", FormatNone, 4, 2},
	OpFrem:  {"frem", FormatNone, 2, 1},
	OpDrem:  {"drem", FormatNone, 4, 2},
	OpIneg:  {"ineg", FormatNone, 1, 1},
	OpLneg:  {"lneg", FormatNone, 2, 2},
	OpFneg:  {"fneg", FormatNone, 1, 1},
	OpDneg:  {"dneg", FormatNone, 2, 2},
	OpIshl:  {"ishl", FormatNone, 2, 1},
	OpLshl:  {"lshl", FormatNone, 3, 2},
	OpIshr:  {"ishr", FormatNone, 2, 1},
	OpLshr:  {"lshr", FormatNone, 3, 2},
	OpIushr: {"iushr", FormatNone, 2, 1},
	OpLushr: {"lushr", FormatNone, 3, 2},
	OpIand:  {"iand", FormatNone, 2, 1},
	OpLand:  {"land", FormatNone, 4, 2},
	OpIor:   {"ior", FormatNone, 2, 1},
	OpLor:   {"lor", FormatNone, 4, 2},
	OpIxor:  {"ixor", FormatNone, 2, 1},
	OpLxor:  {"lxor", FormatNone, 4, 2},
	OpIinc:  {"iinc", FormatIinc, 0, 0},

	// Conversions
	OpI2l: {"i2l", FormatNone, 1, 2},
	OpI2f: {"i2f", FormatNone, 1, 1},
	OpI2d: {"i2d", FormatNone, 1, 2},
	OpL2i: {"l2i", FormatNone, 2, 1},
	OpL2f: {"l2f", FormatNone, 2, 1},
	OpL2d: {"l2d", FormatNone, 2, 2},
	OpF2i: {"f2i", FormatNone, 1, 1},
	OpF2l: {"f2l", FormatNone, 1, 2},
	OpF2d: {"f2d", FormatNone, 1, 2},
	OpD2i: {"d2i", FormatNone, 2, 1},
	OpD2l: {"d2l", FormatNone, 2, 2},
	OpD2f: {"d2f", FormatNone, 2, 1},
	OpI2b: {"i2b", FormatNone, 1, 1},
	OpI2c: {"i2c", FormatNone, 1, 1},
	OpI2s: {"i2s", FormatNone, 1, 1},

	// Comparisons
	OpLcmp:     {"lcmp", FormatNone, 4, 1},
	OpFcmpl:    {"fcmpl", FormatNone, 2, 1},
	OpFcmpg:    {"fcmpg", FormatNone, 2, 1},
	OpDcmpl:    {"dcmpl", FormatNone, 4, 1},
	OpDcmpg:    {"dcmpg", FormatNone, 4, 1},
	OpIfeq:     {"ifeq", FormatBranch, 1, 0},
	OpIfne:     {"ifne", FormatBranch, 1, 0},
	OpIflt:     {"iflt", FormatBranch, 1, 0},
	OpIfge:     {"ifge", FormatBranch, 1, 0},
	OpIfgt:     {"ifgt", FormatBranch, 1, 0},
	OpIfle:     {"ifle", FormatBranch, 1, 0},
	OpIfIcmpeq: {"if_icmpeq", FormatBranch, 2, 0},
	OpIfIcmpne: {"if_icmpne", FormatBranch, 2, 0},
	OpIfIcmplt: {"if_icmplt", FormatBranch, 2, 0},
	OpIfIcmpge: {"if_icmpge", FormatBranch, 2, 0},
	OpIfIcmpgt: {"if_icmpgt", FormatBranch, 2, 0},
	OpIfIcmple: {"if_icmple", FormatBranch, 2, 0},
	OpIfAcmpeq: {"if_acmpeq", FormatBranch, 2, 0},
	OpIfAcmpne: {"if_acmpne", FormatBranch, 2, 0},

	// Control
	OpGoto:         {"goto", FormatBranch, 0, 0},
	OpJsr:          {"jsr", FormatBranch, 0, 1},
	OpRet:          {"ret", FormatLocal, 0, 0},
	OpTableswitch:  {"tableswitch", FormatTableSwitch, 1, 0},
	OpLookupswitch: {"lookupswitch", FormatLookupSwitch, 1, 0},
	OpIreturn:      {"ireturn", FormatNone, 1, 0},
	OpLreturn:      {"lreturn", FormatNone, 2, 0},
	OpFreturn:      {"freturn", FormatNone, 1, 0},
	OpDreturn:      {"dreturn", FormatNone, 2, 0},
	OpAreturn:      {"areturn", FormatNone, 1, 0},
	OpReturn:       {"return", FormatNone, 0, 0},

	// References
	OpGetstatic:       {"getstatic", FormatConst16, 0, Variable},
	OpPutstatic:       {"putstatic", FormatConst16, Variable, 0},
	OpGetfield:        {"getfield", FormatConst16, 1, Variable},
	OpPutfield:        {"putfield", FormatConst16, Variable, 0},
	OpInvokevirtual:   {"invokevirtual", FormatConst16, Variable, Variable},
	OpInvokespecial:   {"invokespecial", FormatConst16, Variable, Variable},
	OpInvokestatic:    {"invokestatic", FormatConst16, Variable, Variable},
	OpInvokeinterface: {"invokeinterface", FormatInvokeInterface, Variable, Variable},
	OpInvokedynamic:   {"invokedynamic", FormatInvokeDynamic, Variable, Variable},
	OpNew:             {"new", FormatConst16, 0, 1},
	OpNewarray:        {"newarray", FormatNewArray, 1, 1},
	OpAnewarray:       {"anewarray", FormatConst16, 1, 1},
	OpArraylength:     {"arraylength", FormatNone, 1, 1},
	OpAthrow:          {"athrow", FormatNone, 1, 0},
	OpCheckcast:       {"checkcast", FormatConst16, 1, 1},
	OpInstanceof:      {"instanceof", FormatConst16, 1, 1},
	OpMonitorenter:    {"monitorenter", FormatNone, 1, 0},
	OpMonitorexit:     {"monitorexit", FormatNone, 1, 0},

	// Extended
	OpWide:           {"wide", FormatWide, 0, 0},
	OpMultianewarray: {"multianewarray", FormatMultiANewArray, Variable, 1},
	OpIfnull:         {"ifnull", FormatBranch, 1, 0},
	OpIfnonnull:      {"ifnonnull", FormatBranch, 1, 0},
	OpGotoW:          {"goto_w", FormatBranchWide, 0, 0},
	OpJsrW:           {"jsr_w", FormatBranchWide, 0, 1},
}

// opcodesByName is the reverse of opcodeTable, used by assemblers.
var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), Format: FormatNone}
}

// Valid reports whether op is a defined instruction.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the mnemonic for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// LookupOpcode returns the opcode with the given mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// Opcodes returns every defined opcode in numeric order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeTable))
	for i := 0; i < 256; i++ {
		if Opcode(i).Valid() {
			ops = append(ops, Opcode(i))
		}
	}
	return ops
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// IsReturn reports whether op returns from the method.
func (op Opcode) IsReturn() bool {
	return op >= OpIreturn && op <= OpReturn
}

// IsJsr reports whether op calls a subroutine.
func (op Opcode) IsJsr() bool {
	return op == OpJsr || op == OpJsrW
}

// IsGoto reports whether op is an unconditional jump.
func (op Opcode) IsGoto() bool {
	return op == OpGoto || op == OpGotoW
}

// IsConditional reports whether op is a two-way branch.
func (op Opcode) IsConditional() bool {
	return (op >= OpIfeq && op <= OpIfAcmpne) || op == OpIfnull || op == OpIfnonnull
}

// IsSwitch reports whether op is a multi-way dispatch.
func (op Opcode) IsSwitch() bool {
	return op == OpTableswitch || op == OpLookupswitch
}

// IsInvoke reports whether op invokes a method.
func (op Opcode) IsInvoke() bool {
	return op >= OpInvokevirtual && op <= OpInvokedynamic
}

// IsLocalLoad reports whether op pushes a local variable.
func (op Opcode) IsLocalLoad() bool {
	return op >= OpIload && op <= OpAload3
}

// IsLocalStore reports whether op pops into a local variable.
func (op Opcode) IsLocalStore() bool {
	return op >= OpIstore && op <= OpAstore3
}

// EndsFlow reports whether control never falls through to the next instruction.
func (op Opcode) EndsFlow() bool {
	return op.IsReturn() || op.IsGoto() || op.IsSwitch() || op == OpAthrow || op == OpRet
}

// implicitLocal returns the local index encoded in xload_n and xstore_n opcodes.
func (op Opcode) implicitLocal() (int, bool) {
	switch {
	case op >= OpIload0 && op <= OpAload3:
		return int(op-OpIload0) % 4, true
	case op >= OpIstore0 && op <= OpAstore3:
		return int(op-OpIstore0) % 4, true
	}
	return 0, false
}
