package system

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessesForPorts asks lsof which processes use the given ports, in one
// batched call. Ports lsof couldn't attribute map to nil.
func ProcessesForPorts(ctx context.Context, localPorts, remotePorts []int) (map[int]*Process, error) {
	args := []string{"-nP"}
	for _, port := range append(append([]int{}, localPorts...), remotePorts...) {
		args = append(args, "-i", "tcp:"+strconv.Itoa(port))
	}

	out, err := runCommand(ctx, "lsof", args...)
	if err != nil && strings.TrimSpace(out) == "" {
		return nil, fmt.Errorf("lsof: %w", err)
	}

	return ParsePortOwners(out, localPorts, remotePorts)
}

// ParsePortOwners parses `lsof -nP -i tcp:<port> ...` output.
//
//	COMMAND  PID   USER   FD   TYPE DEVICE SIZE/OFF NODE NAME
//	tor     2001 atagar   14u  IPv4  14048      0t0  TCP localhost:9051->localhost:37277 (ESTABLISHED)
//	python  2462 atagar    3u  IPv4  14047      0t0  TCP localhost:37277->localhost:9051 (ESTABLISHED)
//
// A local port is attributed to the process bound to it, a remote port to the
// process connected to it.
func ParsePortOwners(output string, localPorts, remotePorts []int) (map[int]*Process, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("no results from lsof")
	}
	if strings.HasPrefix(lines[0], "COMMAND ") {
		lines = lines[1:]
	}

	wantLocal := portSet(localPorts)
	wantRemote := portSet(remotePorts)
	results := make(map[int]*Process)

	for _, line := range lines {
		localPort, remotePort, proc, err := parseLsofPortLine(line)
		if err != nil {
			return nil, fmt.Errorf("unrecognized output from lsof (%v): %s", err, line)
		}
		if proc == nil {
			continue
		}

		if wantLocal[localPort] {
			results[localPort] = proc
		} else if wantRemote[remotePort] {
			results[remotePort] = proc
		}
	}

	for port := range wantLocal {
		if _, ok := results[port]; !ok {
			results[port] = nil
		}
	}
	for port := range wantRemote {
		if _, ok := results[port]; !ok {
			results[port] = nil
		}
	}

	return results, nil
}

// parseLsofPortLine returns a nil process for lines that aren't established
// connections.
func parseLsofPortLine(line string) (int, int, *Process, error) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 0:
		return 0, 0, nil, nil
	case len(fields) != 10:
		return 0, 0, nil, fmt.Errorf("lines are expected to have ten fields")
	case fields[9] != "(ESTABLISHED)":
		return 0, 0, nil, nil
	}

	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("expected the pid to be an integer")
	}

	local, remote, ok := strings.Cut(fields[8], "->")
	if !ok {
		return 0, 0, nil, fmt.Errorf("'%s' is expected to be a '->' separated mapping", fields[8])
	}

	_, localPort, err := SplitAddress(local)
	if err != nil {
		return 0, 0, nil, err
	}
	_, remotePort, err := SplitAddress(remote)
	if err != nil {
		return 0, 0, nil, err
	}

	return localPort, remotePort, &Process{PID: pid, Name: fields[0]}, nil
}

func portSet(ports []int) map[int]bool {
	set := make(map[int]bool, len(ports))
	for _, p := range ports {
		set[p] = true
	}
	return set
}

// NameByPID returns the command name of a process.
func NameByPID(ctx context.Context, pid int) (string, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", err
	}
	return proc.NameWithContext(ctx)
}

// PIDByName finds the pid of a running process with the given command name.
// Errors if there isn't exactly one.
func PIDByName(ctx context.Context, name string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	var matches []int
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err == nil && n == name {
			matches = append(matches, int(p.Pid))
		}
	}

	switch len(matches) {
	case 0:
		return 0, fmt.Errorf("no running process named %q", name)
	case 1:
		return matches[0], nil
	default:
		return 0, fmt.Errorf("%d processes named %q, specify a pid", len(matches), name)
	}
}
