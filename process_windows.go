//go:build windows

package main

import "os/exec"

// killProcessGroup is a no-op on Windows; WaitDelay still unblocks Wait when
// a child keeps the pipes open
func killProcessGroup(cmd *exec.Cmd) {}
