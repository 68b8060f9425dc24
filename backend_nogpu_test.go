//go:build nogpu

package visbuf

func restoreHAL() {}
