package main

import (
	"bytes"
	"testing"
)

// cliOutput 收集 run() 写入 stdOut/stdErr 的内容。
type cliOutput struct {
	out bytes.Buffer
	err bytes.Buffer
}

// captureOutput 在测试期间替换 stdOut/stdErr，结束后自动恢复。
func captureOutput(t *testing.T) *cliOutput {
	t.Helper()

	captured := &cliOutput{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = &captured.out, &captured.err

	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return captured
}
