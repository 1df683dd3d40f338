package tracker

import (
	"bufio"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/nyx/internal/logger"
)

// myEntryTTL is how long our own router status entry is cached. Descriptors
// are published hourly at most.
const myEntryTTL = 5 * time.Minute

// unnamed is tor's nickname for relays that don't set one.
const unnamed = "Unnamed"

// RouterStatus is a relay's entry in the consensus.
type RouterStatus struct {
	Fingerprint string
	Nickname    string
	Address     string
	ORPort      int
	DirPort     int
	Flags       []string
}

// Endpoint is an address and port.
type Endpoint struct {
	Address string
	Port    int
}

type portFingerprint struct {
	port        int
	fingerprint string
}

// consensusCache is never modified after it's built.
type consensusCache struct {
	fingerprints map[string][]portFingerprint // address => relays there
	addresses    map[string]Endpoint          // fingerprint => address and ORPort
	nicknames    map[string]string            // fingerprint => nickname
}

func newConsensusCache(entries []RouterStatus) *consensusCache {
	c := &consensusCache{
		fingerprints: make(map[string][]portFingerprint),
		addresses:    make(map[string]Endpoint, len(entries)),
		nicknames:    make(map[string]string, len(entries)),
	}

	for _, e := range entries {
		c.fingerprints[e.Address] = append(c.fingerprints[e.Address], portFingerprint{port: e.ORPort, fingerprint: e.Fingerprint})
		c.addresses[e.Fingerprint] = Endpoint{Address: e.Address, Port: e.ORPort}

		nickname := e.Nickname
		if nickname == "" {
			nickname = unnamed
		}
		c.nicknames[e.Fingerprint] = nickname
	}

	return c
}

// ConsensusTracker provides quick lookups of relay information from the
// latest consensus. Each update replaces the whole cache, so a lookup never
// mixes data from two consensus documents.
type ConsensusTracker struct {
	controller Controller
	log        logger.Logger
	now        func() time.Time

	cache atomic.Pointer[consensusCache]

	mu        sync.Mutex
	myEntry   *RouterStatus
	myEntryAt time.Time
}

// NewConsensusTracker seeds the cache from the controller's "ns/all" and
// follows subsequent consensus updates.
func NewConsensusTracker(controller Controller, log logger.Logger) *ConsensusTracker {
	if log == nil {
		log = logger.Default()
	}

	t := &ConsensusTracker{controller: controller, log: log, now: time.Now}
	t.cache.Store(newConsensusCache(nil))

	if controller == nil {
		return t
	}

	start := time.Now()
	if nsAll, err := controller.GetInfo("ns/all"); err == nil && nsAll != "" {
		entries, err := ParseRouterStatusLines(nsAll)
		if err != nil {
			log.Info("unable to parse the cached consensus: %v", err)
		}
		t.cache.Store(newConsensusCache(entries))
		log.Info("Cached consensus data, took %0.2fs.", time.Since(start).Seconds())
	}

	controller.AddConsensusListener(t.Update)
	return t
}

// Update replaces the cache with a new consensus.
func (t *ConsensusTracker) Update(entries []RouterStatus) {
	t.cache.Store(newConsensusCache(entries))

	myFingerprint := t.info("fingerprint")
	if myFingerprint == "" {
		return
	}

	for i := range entries {
		if entries[i].Fingerprint == myFingerprint {
			entry := entries[i]
			t.mu.Lock()
			t.myEntry = &entry
			t.myEntryAt = t.now()
			t.mu.Unlock()
			return
		}
	}
}

// RelayFingerprints returns the fingerprints of relays at an address, keyed
// by ORPort. Our own address is answered from tor's live configuration.
func (t *ConsensusTracker) RelayFingerprints(address string) map[int]string {
	if address != "" && address == t.info("address") {
		fingerprint := t.info("fingerprint")
		ports := t.ports(ListenerOR)
		if fingerprint != "" && len(ports) > 0 {
			result := make(map[int]string, len(ports))
			for _, port := range ports {
				result[port] = fingerprint
			}
			return result
		}
	}

	relays := t.cache.Load().fingerprints[address]
	result := make(map[int]string, len(relays))
	for _, r := range relays {
		result[r.port] = r.fingerprint
	}
	return result
}

// RelayNickname returns a relay's nickname, or "" if it isn't in the
// consensus.
func (t *ConsensusTracker) RelayNickname(fingerprint string) string {
	if fingerprint != "" && fingerprint == t.info("fingerprint") {
		nickname, err := t.controller.GetConf("Nickname")
		if err != nil || nickname == "" {
			return unnamed
		}
		return nickname
	}

	return t.cache.Load().nicknames[fingerprint]
}

// RelayAddress returns a relay's address and ORPort, or def if it isn't in
// the consensus.
func (t *ConsensusTracker) RelayAddress(fingerprint string, def Endpoint) Endpoint {
	if fingerprint != "" && fingerprint == t.info("fingerprint") {
		address := t.info("address")
		ports := t.ports(ListenerOR)
		if address != "" && len(ports) == 1 {
			return Endpoint{Address: address, Port: ports[0]}
		}
	}

	if endpoint, ok := t.cache.Load().addresses[fingerprint]; ok {
		return endpoint
	}
	return def
}

// MyRouterStatusEntry returns our own consensus entry, or nil if we aren't a
// relay in the consensus.
func (t *ConsensusTracker) MyRouterStatusEntry() *RouterStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.myEntry == nil || t.now().Sub(t.myEntryAt) > myEntryTTL {
		if t.controller == nil {
			return nil
		}

		entry, err := t.controller.NetworkStatus()
		if err != nil {
			t.log.Debug("unable to fetch our router status entry: %v", err)
			entry = nil
		}
		t.myEntry = entry
		t.myEntryAt = t.now()
	}

	return t.myEntry
}

// Len returns the number of relays in the cache.
func (t *ConsensusTracker) Len() int {
	return len(t.cache.Load().addresses)
}

func (t *ConsensusTracker) info(key string) string {
	if t.controller == nil {
		return ""
	}
	value, err := t.controller.GetInfo(key)
	if err != nil {
		return ""
	}
	return value
}

func (t *ConsensusTracker) ports(listener Listener) []int {
	if t.controller == nil {
		return nil
	}
	return t.controller.Ports(listener)
}

// ParseRouterStatusLines reads the "r" and "s" lines of a network status
// document, such as GETINFO ns/all or a cached-consensus file.
//
//	r caerSidi AAoQ1DAR6kkoo19hBAX5K0QztNw Gf8a7U0Ag6Zr8zJvPFMM9twSzUk 2024-01-01 01:02:03 71.35.133.197 9001 0
//	s Fast Guard Running Stable Valid
//
// Malformed "r" lines are skipped, and reported in the error along with the
// entries that did parse.
func ParseRouterStatusLines(content string) ([]RouterStatus, error) {
	var entries []RouterStatus
	var bad int

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "r "):
			entry, err := parseRLine(line)
			if err != nil {
				bad++
				continue
			}
			entries = append(entries, entry)

		case strings.HasPrefix(line, "s ") && len(entries) > 0:
			entries[len(entries)-1].Flags = strings.Fields(line)[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("reading network status: %w", err)
	}
	if bad > 0 {
		return entries, fmt.Errorf("%d malformed router status lines", bad)
	}
	return entries, nil
}

// parseRLine reads an "r" line. Microdescriptor consensuses leave out the
// descriptor digest, so the address and ports are taken from the end.
func parseRLine(line string) (RouterStatus, error) {
	fields := strings.Fields(line)
	if len(fields) != 8 && len(fields) != 9 {
		return RouterStatus{}, fmt.Errorf("router status line has %d fields: %q", len(fields), line)
	}
	n := len(fields)

	fingerprint, err := Base64ToHex(fields[2])
	if err != nil {
		return RouterStatus{}, err
	}
	orPort, err := strconv.Atoi(fields[n-2])
	if err != nil {
		return RouterStatus{}, fmt.Errorf("bad ORPort in %q", line)
	}
	dirPort, err := strconv.Atoi(fields[n-1])
	if err != nil {
		return RouterStatus{}, fmt.Errorf("bad DirPort in %q", line)
	}

	return RouterStatus{
		Fingerprint: fingerprint,
		Nickname:    fields[1],
		Address:     fields[n-3],
		ORPort:      orPort,
		DirPort:     dirPort,
	}, nil
}

// Base64ToHex converts an unpadded base64 relay identity to its uppercase
// hex fingerprint.
func Base64ToHex(identity string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(identity, "="))
	if err != nil {
		return "", fmt.Errorf("'%s' isn't a base64 identity: %w", identity, err)
	}
	return strings.ToUpper(hex.EncodeToString(raw)), nil
}
