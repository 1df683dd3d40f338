package system

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Resource strategy names.
const (
	StrategyProc = "proc"
	StrategyPs   = "ps"
)

// clockTicks is USER_HZ, which the kernel fixes at 100 for every userspace ABI.
const clockTicks = 100

// procRoot is where the proc filesystem is mounted. Replaced in tests.
var procRoot = "/proc"

// now is the wall clock used for uptime math. Replaced in tests.
var now = time.Now

// ResourceStrategy is one way of asking the OS how much a process is using.
type ResourceStrategy interface {
	Name() string
	Query(ctx context.Context, pid int) (ProcessStats, error)
}

// ProcStrategy reads /proc/<pid>/stat and /proc/<pid>/status directly.
type ProcStrategy struct {
	// BootTime and TotalMemory are looked up through gopsutil when nil.
	BootTime    func(ctx context.Context) (uint64, error)
	TotalMemory func(ctx context.Context) (uint64, error)
}

// Name implements ResourceStrategy.
func (ProcStrategy) Name() string { return StrategyProc }

// Query implements ResourceStrategy.
func (s ProcStrategy) Query(ctx context.Context, pid int) (ProcessStats, error) {
	statPath := filepath.Join(procRoot, strconv.Itoa(pid), "stat")
	statData, err := os.ReadFile(statPath)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("reading %s: %w", statPath, err)
	}

	stat, err := ParseProcStat(string(statData))
	if err != nil {
		return ProcessStats{}, err
	}

	statusPath := filepath.Join(procRoot, strconv.Itoa(pid), "status")
	statusData, err := os.ReadFile(statusPath)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("reading %s: %w", statusPath, err)
	}

	rss, err := ParseProcStatusRSS(string(statusData))
	if err != nil {
		return ProcessStats{}, err
	}

	bootTime := s.BootTime
	if bootTime == nil {
		bootTime = host.BootTimeWithContext
	}
	boot, err := bootTime(ctx)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("unable to determine boot time: %w", err)
	}

	totalMemory := s.TotalMemory
	if totalMemory == nil {
		totalMemory = physicalMemory
	}
	total, err := totalMemory(ctx)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("unable to determine physical memory: %w", err)
	}

	startedAt := float64(boot) + float64(stat.StartTicks)/clockTicks
	uptime := float64(now().UnixNano())/float64(time.Second) - startedAt

	stats := ProcessStats{
		CPUTotal:    stat.UserTime + stat.SystemTime,
		Uptime:      uptime,
		MemoryBytes: rss,
	}
	if total > 0 {
		stats.MemoryPercent = float64(rss) / float64(total)
	}
	return stats, nil
}

func physicalMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// ProcStat holds the fields of /proc/<pid>/stat that we use.
type ProcStat struct {
	State      string
	UserTime   float64 // seconds
	SystemTime float64 // seconds
	StartTicks uint64  // clock ticks after boot
}

// ParseProcStat parses the contents of /proc/<pid>/stat. The command name
// is parenthesized and may contain spaces, so fields are counted from the
// last ')'.
func ParseProcStat(content string) (*ProcStat, error) {
	end := strings.LastIndex(content, ")")
	if end < 0 {
		return nil, fmt.Errorf("invalid /proc stat contents: %q", content)
	}

	// fields[0] is the state (field 3 in proc(5))
	fields := strings.Fields(content[end+1:])
	if len(fields) < 20 {
		return nil, fmt.Errorf("invalid /proc stat contents: only %d fields after the command", len(fields))
	}

	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse utime: %w", err)
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stime: %w", err)
	}
	start, err := strconv.ParseUint(fields[19], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse starttime: %w", err)
	}

	return &ProcStat{
		State:      fields[0],
		UserTime:   float64(utime) / clockTicks,
		SystemTime: float64(stime) / clockTicks,
		StartTicks: start,
	}, nil
}

// ParseProcStatusRSS returns the VmRSS of /proc/<pid>/status in bytes.
func ParseProcStatusRSS(content string) (int64, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "VmRSS:" {
			continue
		}

		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse VmRSS: %w", err)
		}
		return kb * 1024, nil
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("error scanning /proc status: %w", err)
	}
	return 0, fmt.Errorf("no VmRSS entry in /proc status")
}

// PsStrategy shells out to `ps -p <pid> -o cputime,etime,rss,%mem`.
type PsStrategy struct{}

// Name implements ResourceStrategy.
func (PsStrategy) Name() string { return StrategyPs }

// Query implements ResourceStrategy.
func (PsStrategy) Query(ctx context.Context, pid int) (ProcessStats, error) {
	out, err := runCommand(ctx, "ps", "-p", strconv.Itoa(pid), "-o", "cputime,etime,rss,%mem")
	if err != nil {
		return ProcessStats{}, err
	}
	return ParsePs(out)
}

// ParsePs parses resource usage from ps.
//
//	    TIME     ELAPSED   RSS %MEM
//	3-08:06:32 21-00:00:12 121844 23.5
func ParsePs(output string) (ProcessStats, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return ProcessStats{}, fmt.Errorf("unrecognized output from ps: %q", output)
	}

	fields := strings.Fields(lines[1])
	if len(fields) != 4 {
		return ProcessStats{}, fmt.Errorf("unrecognized output from ps: %q", output)
	}

	cpu, err := ParseShortTimeLabel(fields[0])
	if err != nil {
		return ProcessStats{}, err
	}
	uptime, err := ParseShortTimeLabel(fields[1])
	if err != nil {
		return ProcessStats{}, err
	}
	rss, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("failed to parse rss '%s': %w", fields[2], err)
	}
	memPercent, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("failed to parse %%mem '%s': %w", fields[3], err)
	}

	return ProcessStats{
		CPUTotal:      cpu,
		Uptime:        uptime,
		MemoryBytes:   rss * 1024,
		MemoryPercent: memPercent / 100,
	}, nil
}

// ParseShortTimeLabel converts ps style "[[dd-]hh:]mm:ss[.ss]" labels to seconds.
func ParseShortTimeLabel(label string) (float64, error) {
	var days, hours float64
	rest := label

	if d, r, ok := strings.Cut(rest, "-"); ok {
		v, err := strconv.Atoi(d)
		if err != nil {
			return 0, fmt.Errorf("invalid time label '%s'", label)
		}
		days = float64(v)
		rest = r
	}

	parts := strings.Split(rest, ":")
	switch len(parts) {
	case 3:
		v, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("invalid time label '%s'", label)
		}
		hours = float64(v)
		parts = parts[1:]
	case 2:
		if days > 0 {
			return 0, fmt.Errorf("invalid time label '%s': days without hours", label)
		}
	default:
		return 0, fmt.Errorf("invalid time label '%s'", label)
	}

	minutes, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time label '%s'", label)
	}
	seconds, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time label '%s'", label)
	}

	return days*86400 + hours*3600 + float64(minutes)*60 + seconds, nil
}
