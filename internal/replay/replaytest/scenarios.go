package replaytest

import (
	"github.com/avmdbg/avmdbg/internal/sourcemap"
	"github.com/avmdbg/avmdbg/internal/trace"
)

// StackScenario is a program that leaves [1005] on the stack at line 3 (pc 6), [10] at
// line 12 (pc 18) and [10 0 0 0 0 0 0] at line 22 (pc 34).
func StackScenario() []trace.OpcodeTraceUnit {
	units := []trace.OpcodeTraceUnit{
		Unit(1),
		Unit(6, Push(Uint(1005))),
		Unit(7, Pop(1), Push(Uint(1005), Uint(1005))),
		Unit(8, Push(Uint(10))),
		Unit(9, Pop(2), Push(Uint(1015))),
		Unit(10, Pop(1)),
		Unit(11, Pop(1)),
		Unit(12, Push(Uint(10))),
		Unit(13, Pop(1), Push(Uint(10), Uint(10))),
		Unit(14, Pop(1)),
		Unit(18),
	}
	for pc := uint64(21); pc <= 31; pc += 2 {
		units = append(units, Unit(pc, Push(Uint(0))))
	}
	return append(units, Unit(34), Unit(35, Pop(7)))
}

// StackScenarioLines is the pc -> line table of the program traced by StackScenario.
func StackScenarioLines() []int {
	return Lines(
		[2]int{1, 2}, [2]int{6, 3}, [2]int{7, 4}, [2]int{8, 5}, [2]int{9, 6}, [2]int{10, 7}, [2]int{11, 8},
		[2]int{12, 9}, [2]int{13, 10}, [2]int{14, 11}, [2]int{18, 12},
		[2]int{21, 14}, [2]int{23, 15}, [2]int{25, 16}, [2]int{27, 17}, [2]int{29, 18}, [2]int{31, 19},
		[2]int{34, 22}, [2]int{35, 23},
	)
}

func StackScenarioSource(hash []byte, path string) *sourcemap.ProgramSource {
	return ProgramSource(hash, path, StackScenarioLines())
}
