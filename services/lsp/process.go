// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Process is a running language server as seen by the client.
//
// The supervisor task is the only caller of Wait, Terminate and Kill.
type Process interface {
	// Stdin is the server's standard input. Only the writer task writes to it.
	Stdin() io.WriteCloser

	// Stdout is the server's standard output, read by the reader task.
	Stdout() io.Reader

	// Stderr is the server's standard error, drained line by line.
	Stderr() io.Reader

	// Wait blocks until the process exits.
	Wait() error

	// Terminate asks the process to exit.
	Terminate() error

	// Kill forcibly ends the process.
	Kill() error

	// Pid identifies the process in logs. Zero if unknown.
	Pid() int
}

// Spawner starts a server process for cfg in dir.
type Spawner func(ctx context.Context, cfg ServerConfig, dir string) (Process, error)

// execProcess adapts exec.Cmd to Process.
//
// Stdout and stderr are os.Pipe read ends owned by the client rather than
// exec's StdoutPipe, so cmd.Wait never closes them while the reader still
// has frames to drain. Each read end closes itself once it reports EOF.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// drainingReader closes its file after the first read error, which is EOF
// once every writer in the child has exited.
type drainingReader struct {
	f    *os.File
	once sync.Once
}

func (r *drainingReader) Read(b []byte) (int, error) {
	n, err := r.f.Read(b)
	if err != nil {
		r.once.Do(func() { _ = r.f.Close() })
	}
	return n, err
}

func (r *drainingReader) Close() error {
	var err error
	r.once.Do(func() { err = r.f.Close() })
	return err
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }
func (p *execProcess) Terminate() error      { return terminateProcess(p.cmd.Process) }
func (p *execProcess) Kill() error           { return p.cmd.Process.Kill() }

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// ExecSpawner starts the configured command as a child process with all
// three standard streams piped.
//
// Outputs:
//
//	Process - The started process.
//	error - *SpawnError if the command cannot be found or started.
func ExecSpawner(_ context.Context, cfg ServerConfig, dir string) (Process, error) {
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, &SpawnError{Command: cfg.commandLine(), Err: err}
	}

	// The supervisor owns the child's lifetime, so the start context is
	// not bound to the command.
	cmd := exec.Command(path, cfg.Args...)
	cmd.Dir = dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	prepareCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: cfg.commandLine(), Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, &SpawnError{Command: cfg.commandLine(), Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		closeAll(stdoutR, stdoutW)
		return nil, &SpawnError{Command: cfg.commandLine(), Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	// The child holds its own copies of the write ends; ours must go so
	// the readers see EOF when it exits.
	closeAll(stdoutW, stderrW)
	if err != nil {
		_ = stdin.Close()
		closeAll(stdoutR, stderrR)
		return nil, &SpawnError{Command: cfg.commandLine(), Err: err}
	}

	return &execProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: &drainingReader{f: stdoutR},
		stderr: &drainingReader{f: stderrR},
	}, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
