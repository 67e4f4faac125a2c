package machine_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/cami-vm/cami/bytecode"
	"github.com/cami-vm/cami/machine"
	"github.com/cami-vm/cami/types"
)

// pushConst0Halt encodes `push const0; halt` (opcode values from
// eval.OpPush/eval.OpHalt's position in the opcode.go iota table: 21 and
// 46), the smallest program the loader and evaluator can run end to end.
var pushConst0Halt = []byte{21, 0, 0, 0, 46}

func TestMachineRunsToHalt(t *testing.T) {
	prog := &bytecode.Program{
		Code:      pushConst0Halt,
		Constants: []bytecode.Constant{{Kind: bytecode.ConstInteger, Type: &types.Type{Kind: types.I32}, Bits: 5}},
		Functions: []bytecode.Function{{
			Name:          "main",
			EffectiveType: &types.Type{Kind: types.Function, Returned: &types.Type{Kind: types.Void}},
			Blocks:        []bytecode.BlockInfo{{}},
		}},
		Entry: 0,
	}

	m, err := machine.New(prog, machine.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result := m.Run(0)
	if result.ExitCode != 5 {
		t.Fatalf("exit code = %d, want 5 (err=%v)", result.ExitCode, result.Err)
	}
}

func TestMachineStepIsSingleOpcode(t *testing.T) {
	prog := &bytecode.Program{
		Code:      pushConst0Halt,
		Constants: []bytecode.Constant{{Kind: bytecode.ConstInteger, Type: &types.Type{Kind: types.I32}, Bits: 9}},
		Functions: []bytecode.Function{{
			Name:          "main",
			EffectiveType: &types.Type{Kind: types.Function, Returned: &types.Type{Kind: types.Void}},
			Blocks:        []bytecode.BlockInfo{{}},
		}},
		Entry: 0,
	}

	m, err := machine.New(prog, machine.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	finished, _ := m.Step()
	if finished {
		t.Fatalf("push should not finish the run")
	}
	if m.StackDepth() != 1 {
		t.Fatalf("stack depth after push = %d, want 1", m.StackDepth())
	}
	finished, result := m.Step()
	if !finished {
		t.Fatalf("halt should finish the run")
	}
	if result.ExitCode != 9 {
		t.Fatalf("exit code = %d, want 9", result.ExitCode)
	}
}
