package replay

import (
	"maps"
	"slices"

	"github.com/avmdbg/avmdbg/internal/avm"
)

const ScratchSlots = 256

// ProgramState is the execution state of one program. Absent scratch slots hold uint 0.
type ProgramState struct {
	PC      uint64
	Stack   []avm.Value
	Scratch map[uint64]avm.Value
}

func newProgramState() ProgramState {
	return ProgramState{Scratch: make(map[uint64]avm.Value)}
}

func (s *ProgramState) ScratchValue(slot uint64) avm.Value {
	if v, ok := s.Scratch[slot]; ok {
		return v
	}
	return avm.NewUint(0)
}

// ScratchSlotsInUse returns the sorted slots holding a non-zero value.
func (s *ProgramState) ScratchSlotsInUse() []uint64 {
	return slices.Sorted(maps.Keys(s.Scratch))
}

func (s *ProgramState) setScratch(slot uint64, v avm.Value) {
	if v.IsZeroUint() {
		delete(s.Scratch, slot)
		return
	}
	s.Scratch[slot] = v.Clone()
}
