package trace

import (
	"bytes"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (r *PendingTxnResult) UnmarshalJSON(data []byte) error {
	type plain PendingTxnResult
	if err := json.Unmarshal(data, (*plain)(r)); err != nil {
		return err
	}
	r.Raw = bytes.Clone(data)
	return nil
}

func (r PendingTxnResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) != 0 {
		return r.Raw, nil
	}
	type plain PendingTxnResult
	return json.Marshal(plain(r))
}

// AppID returns the application the transaction calls, or the one it created.
func (r *PendingTxnResult) AppID() (uint64, bool) {
	if id := r.Txn.Txn.ApplicationID; id != nil && *id != 0 {
		return *id, true
	}
	if r.ApplicationIndex != nil && *r.ApplicationIndex != 0 {
		return *r.ApplicationIndex, true
	}
	return 0, false
}

func DecodeSimulateResponse(data []byte) (*SimulateResponse, error) {
	var resp SimulateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("can't decode simulation trace: %w", err)
	}
	return &resp, nil
}

func LoadSimulateResponse(path string) (*SimulateResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read simulation trace %s: %w", path, err)
	}
	resp, err := DecodeSimulateResponse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return resp, nil
}
