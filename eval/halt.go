package eval

import "github.com/cami-vm/cami/camierrors"

// execHalt implements `halt` (spec §4.4.2/§4.4.3): pops the top of the
// operand stack and uses it as the exit code if it is an integer. An empty
// stack, or a non-integer top (which is popped and discarded), gives exit
// code 0.
func (e *Evaluator) execHalt() (int64, *camierrors.Error) {
	if len(e.stack) == 0 {
		return 0, nil
	}
	rv, err := e.pop()
	if err != nil {
		return 0, err
	}
	if rv.Kind != VInteger {
		return 0, nil
	}
	return rv.AsInt64(), nil
}
