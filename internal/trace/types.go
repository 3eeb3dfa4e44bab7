package trace

import (
	"github.com/avmdbg/avmdbg/internal/avm"
)

// SimulateResponse is the document produced by the simulator with execution tracing enabled.
type SimulateResponse struct {
	Version       uint64           `json:"version"`
	LastRound     uint64           `json:"last-round"`
	TxnGroups     []TxnGroupResult `json:"txn-groups"`
	InitialStates *InitialStates   `json:"initial-states,omitempty"`
	ExecConfig    *ExecTraceConfig `json:"exec-trace-config,omitempty"`
}

type ExecTraceConfig struct {
	Enable  bool `json:"enable,omitempty"`
	Stack   bool `json:"stack-change,omitempty"`
	Scratch bool `json:"scratch-change,omitempty"`
	State   bool `json:"state-change,omitempty"`
}

type TxnGroupResult struct {
	TxnResults     []TxnResultWithTrace `json:"txn-results"`
	FailureMessage string               `json:"failure-message,omitempty"`
	FailedAt       []uint64             `json:"failed-at,omitempty"`
}

type TxnResultWithTrace struct {
	TxnResult PendingTxnResult `json:"txn-result"`
	ExecTrace *ExecTrace       `json:"exec-trace,omitempty"`
}

// PendingTxnResult keeps only the fields replay needs plus the raw document, which is shown
// verbatim in the transaction group view.
type PendingTxnResult struct {
	Txn              SignedTxn          `json:"txn"`
	ApplicationIndex *uint64            `json:"application-index,omitempty"`
	InnerTxns        []PendingTxnResult `json:"inner-txns,omitempty"`
	PoolError        string             `json:"pool-error,omitempty"`

	Raw []byte `json:"-"`
}

type SignedTxn struct {
	Txn Txn `json:"txn"`
}

type Txn struct {
	Type          string  `json:"type"`
	Sender        string  `json:"snd,omitempty"`
	ApplicationID *uint64 `json:"apid,omitempty"`
}

// ExecTrace mirrors the transaction nesting: every inner transaction spawned by this one has
// its own ExecTrace at the same index as in PendingTxnResult.InnerTxns.
type ExecTrace struct {
	LogicSigTrace          []OpcodeTraceUnit `json:"logic-sig-trace,omitempty"`
	LogicSigHash           []byte            `json:"logic-sig-hash,omitempty"`
	ApprovalProgramTrace   []OpcodeTraceUnit `json:"approval-program-trace,omitempty"`
	ApprovalProgramHash    []byte            `json:"approval-program-hash,omitempty"`
	ClearStateProgramTrace []OpcodeTraceUnit `json:"clear-state-program-trace,omitempty"`
	ClearStateProgramHash  []byte            `json:"clear-state-program-hash,omitempty"`
	ClearStateRollback     bool              `json:"clear-state-rollback,omitempty"`
	InnerTrace             []ExecTrace       `json:"inner-trace,omitempty"`
}

type OpcodeTraceUnit struct {
	Pc             uint64           `json:"pc"`
	SpawnedInners  []uint64         `json:"spawned-inners,omitempty"`
	StackPopCount  uint64           `json:"stack-pop-count,omitempty"`
	StackAdditions []avm.Value      `json:"stack-additions,omitempty"`
	ScratchChanges []ScratchChange  `json:"scratch-changes,omitempty"`
	StateChanges   []StateOperation `json:"state-changes,omitempty"`
}

type ScratchChange struct {
	Slot     uint64    `json:"slot"`
	NewValue avm.Value `json:"new-value"`
}

type StateOperationType string

const (
	OperationWrite  StateOperationType = "w"
	OperationDelete StateOperationType = "d"
)

type AppStateType string

const (
	AppStateGlobal AppStateType = "g"
	AppStateLocal  AppStateType = "l"
	AppStateBox    AppStateType = "b"
)

type StateOperation struct {
	Operation    StateOperationType `json:"operation"`
	AppStateType AppStateType       `json:"app-state-type"`
	Key          []byte             `json:"key"`
	NewValue     *avm.Value         `json:"new-value,omitempty"`
	Account      string             `json:"account,omitempty"`
}

type InitialStates struct {
	AppInitialStates []AppInitialState `json:"app-initial-states,omitempty"`
}

type AppInitialState struct {
	ID         uint64         `json:"id"`
	AppGlobals *AppKVStorage  `json:"app-globals,omitempty"`
	AppLocals  []AppKVStorage `json:"app-locals,omitempty"`
	AppBoxes   *AppKVStorage  `json:"app-boxes,omitempty"`
}

type AppKVStorage struct {
	Account string        `json:"account,omitempty"`
	Kvs     []AvmKeyValue `json:"kvs"`
}

type AvmKeyValue struct {
	Key   []byte    `json:"key"`
	Value avm.Value `json:"value"`
}
