package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const pausesKey = "system/pauses"

// Reader exposes the minimal parameter store capabilities required to inspect pause toggles.
type Reader interface {
	ParamStoreGet(name string) ([]byte, bool, error)
}

func loadPauses(reader Reader) (map[string]bool, error) {
	if reader == nil {
		return nil, fmt.Errorf("params: reader not configured")
	}
	raw, ok, err := reader.ParamStoreGet(pausesKey)
	if err != nil {
		return nil, fmt.Errorf("params: load pauses: %w", err)
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return map[string]bool{}, nil
	}
	var payload map[string]bool
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("params: decode pauses: %w", err)
	}
	normalized := make(map[string]bool, len(payload))
	for module, paused := range payload {
		normalized[strings.ToLower(module)] = paused
	}
	return normalized, nil
}

// ModulePaused reports whether the named module pause toggle is enabled.
func ModulePaused(reader Reader, module string) (bool, error) {
	pauses, err := loadPauses(reader)
	if err != nil {
		return false, err
	}
	return pauses[strings.ToLower(module)], nil
}

// PauseView adapts a parameter reader to the module guard. Read failures
// are treated as "not paused" and surface through Err.
type PauseView struct {
	Reader Reader
	err    error
}

// IsPaused implements the guard's pause view.
func (v *PauseView) IsPaused(module string) bool {
	paused, err := ModulePaused(v.Reader, module)
	if err != nil {
		v.err = err
		return false
	}
	return paused
}

// Err returns the last read failure.
func (v *PauseView) Err() error { return v.err }
