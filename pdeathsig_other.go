//go:build !linux

package cohort

// setParentDeathSignal is a no-op where the kernel offers no parent-death
// binding. Workers on these platforms rely on the parent's explicit
// termination request.
func setParentDeathSignal() {}
