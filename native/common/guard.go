// Package common holds helpers shared by the native modules.
package common

import (
	coreerrors "cdpledger/core/errors"
)

// PauseView reports whether a module is halted. Module names are "cdp",
// "liquidation" and "transfer".
type PauseView interface {
	IsPaused(module string) bool
}

// Guard refuses work for a paused module with a policy reject.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" || !p.IsPaused(module) {
		return nil
	}
	return coreerrors.Policy(coreerrors.RejectModulePaused, "module-paused", "%s: module paused", module)
}
