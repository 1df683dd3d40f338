package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// Connection resolver names.
const (
	ResolverProc      = "proc"
	ResolverNetstat   = "netstat"
	ResolverSS        = "ss"
	ResolverLsof      = "lsof"
	ResolverInference = "inference"
)

// ErrNoConnections is returned when a resolver ran but found nothing for
// the pid. A live relay always has at least its control connection, so an
// empty answer means the resolver can't see the process.
var ErrNoConnections = errors.New("no connections found")

// Resolver is one strategy for listing the connections of a process.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, pid int, processName string) ([]Connection, error)
}

// NewResolver returns the OS resolver with the given name. The inference
// pseudo-resolver needs relay metadata and is built by the tracker package.
func NewResolver(name string) (Resolver, error) {
	switch name {
	case ResolverProc:
		return procResolver{}, nil
	case ResolverNetstat:
		return netstatResolver, nil
	case ResolverSS:
		return ssResolver, nil
	case ResolverLsof:
		return lsofResolver, nil
	default:
		return nil, fmt.Errorf("unrecognized connection resolver: %q", name)
	}
}

// DefaultResolvers lists the resolvers usable on this system, best first.
func DefaultResolvers() []Resolver {
	var names []string
	switch runtime.GOOS {
	case "linux":
		names = []string{ResolverProc, ResolverNetstat, ResolverSS, ResolverLsof}
	default:
		names = []string{ResolverLsof}
	}

	var resolvers []Resolver
	for _, name := range names {
		if !IsResolverAvailable(name) {
			continue
		}
		r, err := NewResolver(name)
		if err != nil {
			continue
		}
		resolvers = append(resolvers, r)
	}
	return resolvers
}

// IsResolverAvailable checks for the file or command the resolver needs.
func IsResolverAvailable(name string) bool {
	switch name {
	case ResolverProc:
		return IsProcAvailable()
	case ResolverNetstat, ResolverSS, ResolverLsof:
		return lookPath(name)
	default:
		return false
	}
}

// IsProcAvailable reports whether a linux style proc filesystem is mounted.
func IsProcAvailable() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	_, err := os.Stat(procRoot + "/stat")
	return err == nil
}

// procResolver reads the kernel's socket tables through gopsutil.
type procResolver struct{}

func (procResolver) Name() string { return ResolverProc }

func (procResolver) Resolve(ctx context.Context, pid int, _ string) ([]Connection, error) {
	stats, err := psnet.ConnectionsPidWithContext(ctx, "inet", int32(pid))
	if err != nil {
		return nil, fmt.Errorf("proc: %w", err)
	}

	conns := fromConnectionStats(stats)
	if len(conns) == 0 {
		return nil, fmt.Errorf("proc: %w for pid %d", ErrNoConnections, pid)
	}
	return conns, nil
}

// AllConnections lists established connections for every process the
// kernel will show us, used when per-process attribution isn't possible.
func AllConnections(ctx context.Context) ([]Connection, error) {
	stats, err := psnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return fromConnectionStats(stats), nil
}

func fromConnectionStats(stats []psnet.ConnectionStat) []Connection {
	var conns []Connection
	for _, s := range stats {
		protocol := ProtocolTCP
		if s.Type == syscall.SOCK_DGRAM {
			protocol = ProtocolUDP
		}

		if protocol == ProtocolTCP && s.Status != "ESTABLISHED" {
			continue
		}
		if s.Raddr.Port == 0 {
			continue
		}

		conns = append(conns, Connection{
			LocalAddress:  s.Laddr.IP,
			LocalPort:     int(s.Laddr.Port),
			RemoteAddress: s.Raddr.IP,
			RemotePort:    int(s.Raddr.Port),
			Protocol:      protocol,
			IsIPv6:        s.Family == syscall.AF_INET6,
		})
	}
	return conns
}

// commandResolver runs an external tool and parses its output.
type commandResolver struct {
	name  string
	args  func(pid int) []string
	parse func(output string, pid int) ([]Connection, error)
}

func (r commandResolver) Name() string { return r.name }

func (r commandResolver) Resolve(ctx context.Context, pid int, _ string) ([]Connection, error) {
	out, err := runCommand(ctx, r.name, r.args(pid)...)
	if err != nil {
		return nil, err
	}

	conns, err := r.parse(out, pid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.name, err)
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("%s: %w for pid %d", r.name, ErrNoConnections, pid)
	}
	return conns, nil
}

var netstatResolver = commandResolver{
	name:  ResolverNetstat,
	args:  func(int) []string { return []string{"-np"} },
	parse: ParseNetstat,
}

var ssResolver = commandResolver{
	name:  ResolverSS,
	args:  func(int) []string { return []string{"-nptu"} },
	parse: ParseSS,
}

var lsofResolver = commandResolver{
	name:  ResolverLsof,
	args:  func(pid int) []string { return []string{"-wnP", "-a", "-p", strconv.Itoa(pid), "-i"} },
	parse: ParseLsof,
}

// ParseNetstat parses `netstat -np` output, keeping established sockets
// owned by pid.
//
//	tcp   0   0 192.168.0.1:44284   38.229.79.2:443   ESTABLISHED 15843/tor
func ParseNetstat(output string, pid int) ([]Connection, error) {
	var conns []Connection
	owner := strconv.Itoa(pid) + "/"

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 7 || fields[5] != "ESTABLISHED" {
			continue
		}
		if !strings.HasPrefix(fields[len(fields)-1], owner) {
			continue
		}

		protocol, isIPv6 := netstatProtocol(fields[0])
		if protocol == "" {
			continue
		}

		conn, err := buildConnection(fields[3], fields[4], protocol)
		if err != nil {
			return nil, fmt.Errorf("unrecognized line %q: %w", line, err)
		}
		conn.IsIPv6 = conn.IsIPv6 || isIPv6
		conns = append(conns, conn)
	}

	return conns, nil
}

func netstatProtocol(field string) (string, bool) {
	switch field {
	case "tcp":
		return ProtocolTCP, false
	case "tcp6":
		return ProtocolTCP, true
	case "udp":
		return ProtocolUDP, false
	case "udp6":
		return ProtocolUDP, true
	}
	return "", false
}

var ssUsersRe = regexp.MustCompile(`pid=(\d+),`)

// ParseSS parses `ss -nptu` output, keeping established sockets owned by pid.
//
//	tcp  ESTAB  0  0  192.168.0.20:44415  38.229.79.2:443  users:(("tor",pid=15843,fd=9))
func ParseSS(output string, pid int) ([]Connection, error) {
	var conns []Connection

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 7 || fields[1] != "ESTAB" {
			continue
		}

		owned := false
		for _, match := range ssUsersRe.FindAllStringSubmatch(fields[6], -1) {
			if match[1] == strconv.Itoa(pid) {
				owned = true
				break
			}
		}
		if !owned {
			continue
		}

		protocol := fields[0]
		if protocol != ProtocolTCP && protocol != ProtocolUDP {
			continue
		}

		conn, err := buildConnection(fields[4], fields[5], protocol)
		if err != nil {
			return nil, fmt.Errorf("unrecognized line %q: %w", line, err)
		}
		conns = append(conns, conn)
	}

	return conns, nil
}

// ParseLsof parses `lsof -wnP -a -p <pid> -i` output.
//
//	tor  15843 debian-tor  9u  IPv4 211403  0t0  TCP 192.168.0.20:44415->38.229.79.2:443 (ESTABLISHED)
func ParseLsof(output string, pid int) ([]Connection, error) {
	var conns []Connection

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 10 || fields[9] != "(ESTABLISHED)" {
			continue
		}
		if fields[1] != strconv.Itoa(pid) {
			continue
		}

		local, remote, ok := strings.Cut(fields[8], "->")
		if !ok {
			return nil, fmt.Errorf("unrecognized line %q: expected a '->' mapping", line)
		}

		conn, err := buildConnection(local, remote, strings.ToLower(fields[7]))
		if err != nil {
			return nil, fmt.Errorf("unrecognized line %q: %w", line, err)
		}
		conn.IsIPv6 = conn.IsIPv6 || fields[4] == "IPv6"
		conns = append(conns, conn)
	}

	return conns, nil
}

func buildConnection(local, remote, protocol string) (Connection, error) {
	localAddr, localPort, err := SplitAddress(local)
	if err != nil {
		return Connection{}, err
	}
	remoteAddr, remotePort, err := SplitAddress(remote)
	if err != nil {
		return Connection{}, err
	}

	return Connection{
		LocalAddress:  localAddr,
		LocalPort:     localPort,
		RemoteAddress: remoteAddr,
		RemotePort:    remotePort,
		Protocol:      protocol,
		IsIPv6:        strings.Contains(localAddr, ":") || strings.Contains(remoteAddr, ":"),
	}, nil
}

// SplitAddress splits "addr:port", "[v6addr]:port" or "v6addr:port" on the
// final colon.
func SplitAddress(s string) (string, int, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 {
		return "", 0, fmt.Errorf("'%s' isn't an address:port", s)
	}

	addr := strings.TrimSuffix(strings.TrimPrefix(s[:idx], "["), "]")
	port, err := strconv.Atoi(s[idx+1:])
	if err != nil || !IsValidPort(port) {
		return "", 0, fmt.Errorf("'%s' doesn't have a valid port", s)
	}
	return addr, port, nil
}
