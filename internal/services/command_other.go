//go:build !unix

package services

import "os/exec"

func configureProcessGroup(*exec.Cmd) {}
