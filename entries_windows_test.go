//go:build windows

package cohort

func registerPlatformEntries() {}
