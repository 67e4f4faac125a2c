package eval_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/cami-vm/cami/bytecode"
	"github.com/cami-vm/cami/camierrors"
	"github.com/cami-vm/cami/eval"
	"github.com/cami-vm/cami/object"
	"github.com/cami-vm/cami/types"
	"github.com/cami-vm/cami/vmem"
)

// asm is a tiny hand-assembler for the opcode encoding of spec §4.4.1:
// one opcode byte, followed by 3 little-endian info bytes for the
// "with-info" set. It exists only to build the minimal programs these
// tests run; there is no general assembler (spec Non-goal).
type asm struct {
	code []byte
}

func (a *asm) op(op byte) *asm {
	a.code = append(a.code, op)
	return a
}

func (a *asm) opInfo(op byte, info uint32) *asm {
	a.code = append(a.code, op, byte(info), byte(info>>8), byte(info>>16))
	return a
}

func (a *asm) opSignedInfo(op byte, off int32) *asm {
	return a.opInfo(op, uint32(off)&0xFF_FFFF)
}

// Opcode bytes, matching the iota order in opcode.go.
const (
	opDsg byte = iota
	opDrf
	opDot
	opArrow
	opAddr
	opRead
	opMdf
	opZero
	opMdfi
	opZeroi
	opEb
	opLb
	opFe
	opNew
	opDel
	opJ
	opJst
	opJnt
	opCall
	opIj
	opRet
	opPush
	opPushu
	opPop
	opDup
	opCpl
	opNeg
	opPos
	opNot
	opMul
	opDiv
	opMod
	opAdd
	opSub
	opLs
	opRs
	opSl
	opSle
	opSg
	opSge
	opSeq
	opSne
	opAnd
	opOr
	opXor
	opCast
	opHalt
	opNop
)

func i32() *types.Type { return &types.Type{Kind: types.I32} }

func runProgram(t *testing.T, prog *bytecode.Program) eval.Result {
	t.Helper()
	loaded, err := bytecode.Load(prog, vmem.Config{HeapPageSize: 1 << 16}, object.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ev := eval.New(loaded, zap.NewNop())
	return ev.Run(10_000)
}

func voidFuncType() *types.Type {
	return &types.Type{Kind: types.Function, Returned: &types.Type{Kind: types.Void}}
}

// TestPushAndHalt covers the golden path: push a constant, halt with it
// as the exit code (spec §8 happy path).
func TestPushAndHalt(t *testing.T) {
	var a asm
	a.opInfo(opPush, 0).op(opHalt)

	prog := &bytecode.Program{
		Code:      a.code,
		Constants: []bytecode.Constant{{Kind: bytecode.ConstInteger, Type: i32(), Bits: 42}},
		Functions: []bytecode.Function{{
			Name:          "main",
			EffectiveType: voidFuncType(),
			Blocks:        []bytecode.BlockInfo{{}},
		}},
		Entry: 0,
	}

	result := runProgram(t, prog)
	if result.Completion != eval.RunHalt {
		t.Fatalf("completion = %s, err = %v", result.Completion, result.Err)
	}
	if result.ExitCode != 42 {
		t.Fatalf("exit code = %d, want 42", result.ExitCode)
	}
}

// TestDivByZeroIsUB covers spec §7.3's UBDivOrModZero: dividing a nonzero
// constant by a zero constant must surface as an exception completion,
// not a panic or a silently wrong result.
func TestDivByZeroIsUB(t *testing.T) {
	var a asm
	a.opInfo(opPush, 0). // dividend = 10
				opInfo(opPush, 1). // divisor = 0
				op(opDiv).
				op(opHalt)

	prog := &bytecode.Program{
		Code: a.code,
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 10},
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 0},
		},
		Functions: []bytecode.Function{{
			Name:          "main",
			EffectiveType: voidFuncType(),
			Blocks:        []bytecode.BlockInfo{{}},
		}},
		Entry: 0,
	}

	result := runProgram(t, prog)
	if result.Completion != eval.RunException {
		t.Fatalf("completion = %s, want exception", result.Completion)
	}
	if result.Err == nil || result.Err.Kind != camierrors.KindUndefinedBehavior {
		t.Fatalf("err = %v, want an undefined-behavior error", result.Err)
	}
}

// TestSignedAddOverflowIsUB covers spec §4.4.3's signed-overflow check on
// arithmetic ops: INT_MAX + 1 must be reported, not wrapped.
func TestSignedAddOverflowIsUB(t *testing.T) {
	var a asm
	a.opInfo(opPush, 0).
		opInfo(opPush, 1).
		op(opAdd).
		op(opHalt)

	prog := &bytecode.Program{
		Code: a.code,
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 0x7FFF_FFFF},
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 1},
		},
		Functions: []bytecode.Function{{
			Name:          "main",
			EffectiveType: voidFuncType(),
			Blocks:        []bytecode.BlockInfo{{}},
		}},
		Entry: 0,
	}

	result := runProgram(t, prog)
	if result.Completion != eval.RunException {
		t.Fatalf("completion = %s, want exception (err=%v)", result.Completion, result.Err)
	}
}

// TestSignedMulOverflowIsUB covers spec §4.4.3's signed-overflow check on
// mul specifically: a 32-bit multiplication whose mathematical product
// exceeds INT32_MAX must be reported even though the product fits easily
// in the int64 the interpreter computes it in (regression test for a
// range check that only looked at 64-bit wraparound).
func TestSignedMulOverflowIsUB(t *testing.T) {
	var a asm
	a.opInfo(opPush, 0).
		opInfo(opPush, 1).
		op(opMul).
		op(opHalt)

	prog := &bytecode.Program{
		Code: a.code,
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 100000},
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 100000},
		},
		Functions: []bytecode.Function{{
			Name:          "main",
			EffectiveType: voidFuncType(),
			Blocks:        []bytecode.BlockInfo{{}},
		}},
		Entry: 0,
	}

	result := runProgram(t, prog)
	if result.Completion != eval.RunException {
		t.Fatalf("completion = %s, want exception (err=%v)", result.Completion, result.Err)
	}
	if result.Err == nil || result.Err.Kind != camierrors.KindUndefinedBehavior {
		t.Fatalf("err = %v, want an undefined-behavior error", result.Err)
	}
}

// TestUnsequencedModifyThenReadIsUB covers spec §8 scenario 3: modifying
// an object and then reading it again within the same full expression,
// with no sequenced-before relation declared between the two accesses,
// must surface as unsequenced_access — not silently succeed because the
// two accesses were minted under different process-wide exec instances.
func TestUnsequencedModifyThenReadIsUB(t *testing.T) {
	var a asm
	a.opInfo(opEb, 0).
		opInfo(opFe, 0).
		opInfo(opDsg, 0).
		opInfo(opPush, 0).
		op(opMdf).
		opInfo(opDsg, 0).
		op(opRead).
		op(opPop).
		op(opHalt)

	prog := &bytecode.Program{
		Code: a.code,
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 5},
		},
		Functions: []bytecode.Function{{
			Name:          "main",
			EffectiveType: voidFuncType(),
			FrameSize:     64,
			MaxObjectNum:  1,
			Blocks:        []bytecode.BlockInfo{{Slots: []uint32{0}}},
			FullExprs: []bytecode.FullExprInfo{{
				EventCount: 2,
				Bits:       []bool{false, false, false, false}, // no declared ordering
				Lines:      []int{0, 0},
				Columns:    []int{0, 0},
			}},
			SlotTypes:   []*types.Type{i32()},
			SlotOffsets: []uint64{0},
		}},
		Entry: 0,
	}

	result := runProgram(t, prog)
	if result.Completion != eval.RunException {
		t.Fatalf("completion = %s, want exception (err=%v)", result.Completion, result.Err)
	}
	if result.Err == nil || result.Err.Kind != camierrors.KindUndefinedBehavior {
		t.Fatalf("err = %v, want an undefined-behavior error", result.Err)
	}
}

// TestConditionalJumpSkipsBlock exercises jnt/j control flow: when the
// pushed condition is false, the jump must be taken and the dead branch's
// halt code must never execute.
func TestConditionalJumpSkipsBlock(t *testing.T) {
	var a asm
	// push 0 (false); jnt +skip over "push 99; halt"; push 7; halt
	a.opInfo(opPush, 0)       // [0] false condition
	jntAt := len(a.code)
	a.opSignedInfo(opJnt, 0) // [4] placeholder, patched below
	a.opInfo(opPush, 1).op(opHalt) // dead: would exit 99
	target := len(a.code)
	a.opInfo(opPush, 2).op(opHalt) // live: exits 7
	offset := int32(target - (jntAt + 4))
	a.code[jntAt+1] = byte(offset)
	a.code[jntAt+2] = byte(offset >> 8)
	a.code[jntAt+3] = byte(offset >> 16)

	prog := &bytecode.Program{
		Code: a.code,
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 0},
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 99},
			{Kind: bytecode.ConstInteger, Type: i32(), Bits: 7},
		},
		Functions: []bytecode.Function{{
			Name:          "main",
			EffectiveType: voidFuncType(),
			Blocks:        []bytecode.BlockInfo{{}},
		}},
		Entry: 0,
	}

	result := runProgram(t, prog)
	if result.Completion != eval.RunHalt {
		t.Fatalf("completion = %s, err = %v", result.Completion, result.Err)
	}
	if result.ExitCode != 7 {
		t.Fatalf("exit code = %d, want 7 (jump not taken correctly)", result.ExitCode)
	}
}

