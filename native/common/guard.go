package common

import "errors"

// ErrModulePaused is returned by Guard when the named module has been halted
// by the operations role.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is administratively paused. The
// vault and rewards engines consult it before every mutating operation.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
