// Package replaytest builds simulation traces and source maps for tests.
package replaytest

import (
	"github.com/avmdbg/avmdbg/internal/avm"
	"github.com/avmdbg/avmdbg/internal/trace"
)

func Uint(v uint64) avm.Value {
	return avm.NewUint(v)
}

func Bytes(s string) avm.Value {
	return avm.NewString(s)
}

type UnitOption func(u *trace.OpcodeTraceUnit)

func Unit(pc uint64, opts ...UnitOption) trace.OpcodeTraceUnit {
	u := trace.OpcodeTraceUnit{Pc: pc}
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func Pop(n uint64) UnitOption {
	return func(u *trace.OpcodeTraceUnit) {
		u.StackPopCount = n
	}
}

func Push(values ...avm.Value) UnitOption {
	return func(u *trace.OpcodeTraceUnit) {
		u.StackAdditions = append(u.StackAdditions, values...)
	}
}

func Scratch(slot uint64, v avm.Value) UnitOption {
	return func(u *trace.OpcodeTraceUnit) {
		u.ScratchChanges = append(u.ScratchChanges, trace.ScratchChange{Slot: slot, NewValue: v})
	}
}

func Spawn(indexes ...uint64) UnitOption {
	return func(u *trace.OpcodeTraceUnit) {
		u.SpawnedInners = append(u.SpawnedInners, indexes...)
	}
}

func stateChange(op trace.StateOperationType, kind trace.AppStateType, account, key string, v *avm.Value) UnitOption {
	return func(u *trace.OpcodeTraceUnit) {
		u.StateChanges = append(u.StateChanges, trace.StateOperation{
			Operation:    op,
			AppStateType: kind,
			Key:          []byte(key),
			NewValue:     v,
			Account:      account,
		})
	}
}

func GlobalWrite(key string, v avm.Value) UnitOption {
	return stateChange(trace.OperationWrite, trace.AppStateGlobal, "", key, &v)
}

func GlobalDelete(key string) UnitOption {
	return stateChange(trace.OperationDelete, trace.AppStateGlobal, "", key, nil)
}

func LocalWrite(account, key string, v avm.Value) UnitOption {
	return stateChange(trace.OperationWrite, trace.AppStateLocal, account, key, &v)
}

func LocalDelete(account, key string) UnitOption {
	return stateChange(trace.OperationDelete, trace.AppStateLocal, account, key, nil)
}

func BoxWrite(key string, v avm.Value) UnitOption {
	return stateChange(trace.OperationWrite, trace.AppStateBox, "", key, &v)
}

func BoxDelete(key string) UnitOption {
	return stateChange(trace.OperationDelete, trace.AppStateBox, "", key, nil)
}

// TxnBuilder assembles one transaction result together with its execution trace.
type TxnBuilder struct {
	result trace.PendingTxnResult
	trace  *trace.ExecTrace
}

func AppCall(appID uint64) *TxnBuilder {
	b := &TxnBuilder{}
	b.result.Txn.Txn.Type = "appl"
	b.result.Txn.Txn.ApplicationID = &appID
	return b
}

// AppCreate is an application call that reports the created id only through application-index.
func AppCreate(appID uint64) *TxnBuilder {
	b := &TxnBuilder{}
	b.result.Txn.Txn.Type = "appl"
	b.result.ApplicationIndex = &appID
	return b
}

func Payment() *TxnBuilder {
	b := &TxnBuilder{}
	b.result.Txn.Txn.Type = "pay"
	return b
}

func (b *TxnBuilder) Sender(addr string) *TxnBuilder {
	b.result.Txn.Txn.Sender = addr
	return b
}

func (b *TxnBuilder) execTrace() *trace.ExecTrace {
	if b.trace == nil {
		b.trace = &trace.ExecTrace{}
	}
	return b.trace
}

func (b *TxnBuilder) LogicSig(hash []byte, units ...trace.OpcodeTraceUnit) *TxnBuilder {
	t := b.execTrace()
	t.LogicSigHash = hash
	t.LogicSigTrace = units
	return b
}

func (b *TxnBuilder) Approval(hash []byte, units ...trace.OpcodeTraceUnit) *TxnBuilder {
	t := b.execTrace()
	t.ApprovalProgramHash = hash
	t.ApprovalProgramTrace = units
	return b
}

func (b *TxnBuilder) ClearState(hash []byte, units ...trace.OpcodeTraceUnit) *TxnBuilder {
	t := b.execTrace()
	t.ClearStateProgramHash = hash
	t.ClearStateProgramTrace = units
	return b
}

// Inner appends an inner transaction. Its trace keeps the same index as its result.
func (b *TxnBuilder) Inner(inner *TxnBuilder) *TxnBuilder {
	built := inner.Build()
	b.result.InnerTxns = append(b.result.InnerTxns, built.TxnResult)
	t := b.execTrace()
	if built.ExecTrace != nil {
		t.InnerTrace = append(t.InnerTrace, *built.ExecTrace)
	} else {
		t.InnerTrace = append(t.InnerTrace, trace.ExecTrace{})
	}
	return b
}

func (b *TxnBuilder) Build() trace.TxnResultWithTrace {
	return trace.TxnResultWithTrace{TxnResult: b.result, ExecTrace: b.trace}
}

func Group(txns ...*TxnBuilder) trace.TxnGroupResult {
	group := trace.TxnGroupResult{TxnResults: make([]trace.TxnResultWithTrace, len(txns))}
	for i, txn := range txns {
		group.TxnResults[i] = txn.Build()
	}
	return group
}

func Response(groups ...trace.TxnGroupResult) *trace.SimulateResponse {
	return &trace.SimulateResponse{Version: 2, TxnGroups: groups}
}

// AppInitialState is a starting state entry for WithInitialStates.
type AppInitialState struct {
	ID     uint64
	Global map[string]avm.Value
	Local  map[string]map[string]avm.Value
	Boxes  map[string]avm.Value
}

func WithInitialStates(resp *trace.SimulateResponse, states ...AppInitialState) *trace.SimulateResponse {
	if resp.InitialStates == nil {
		resp.InitialStates = &trace.InitialStates{}
	}
	for _, st := range states {
		init := trace.AppInitialState{ID: st.ID}
		if st.Global != nil {
			init.AppGlobals = &trace.AppKVStorage{Kvs: kvs(st.Global)}
		}
		for account, local := range st.Local {
			init.AppLocals = append(init.AppLocals, trace.AppKVStorage{Account: account, Kvs: kvs(local)})
		}
		if st.Boxes != nil {
			init.AppBoxes = &trace.AppKVStorage{Kvs: kvs(st.Boxes)}
		}
		resp.InitialStates.AppInitialStates = append(resp.InitialStates.AppInitialStates, init)
	}
	return resp
}

func kvs(m map[string]avm.Value) []trace.AvmKeyValue {
	res := make([]trace.AvmKeyValue, 0, len(m))
	for k, v := range m {
		res = append(res, trace.AvmKeyValue{Key: []byte(k), Value: v})
	}
	return res
}
