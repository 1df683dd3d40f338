package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lsofPortOutput = `COMMAND  PID   USER   FD   TYPE DEVICE SIZE/OFF NODE NAME
tor     2001 atagar   14u  IPv4  14048      0t0  TCP localhost:9051->localhost:37277 (ESTABLISHED)
tor     2001 atagar   15u  IPv4  22024      0t0  TCP localhost:9051->localhost:51849 (ESTABLISHED)
python  2462 atagar    3u  IPv4  14047      0t0  TCP localhost:37277->localhost:9051 (ESTABLISHED)
firefox 7184 atagar   66u  IPv4  22023      0t0  TCP localhost:51849->localhost:9051 (ESTABLISHED)
tor     2001 atagar    6u  IPv4  14044      0t0  TCP localhost:9051 (LISTEN)
`

func TestParsePortOwners(t *testing.T) {
	results, err := ParsePortOwners(lsofPortOutput, []int{37277, 51849}, nil)
	require.NoError(t, err)

	assert.Equal(t, map[int]*Process{
		37277: {PID: 2462, Name: "python"},
		51849: {PID: 7184, Name: "firefox"},
	}, results)
}

func TestParsePortOwners_UnknownPorts(t *testing.T) {
	results, err := ParsePortOwners(lsofPortOutput, []int{37277, 60000}, []int{443})
	require.NoError(t, err)

	require.Contains(t, results, 60000)
	assert.Nil(t, results[60000])
	require.Contains(t, results, 443)
	assert.Nil(t, results[443])
	assert.Equal(t, &Process{PID: 2462, Name: "python"}, results[37277])
}

func TestParsePortOwners_RemotePorts(t *testing.T) {
	results, err := ParsePortOwners(lsofPortOutput, nil, []int{37277})
	require.NoError(t, err)
	assert.Equal(t, &Process{PID: 2001, Name: "tor"}, results[37277])
}

func TestParsePortOwners_Errors(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{name: "empty", output: ""},
		{name: "short line", output: "tor 2001 atagar 14u IPv4 14048 0t0 TCP (ESTABLISHED)\n"},
		{name: "bad pid", output: "tor abc atagar 14u IPv4 14048 0t0 TCP localhost:9051->localhost:37277 (ESTABLISHED)\n"},
		{name: "no mapping", output: "tor 2001 atagar 14u IPv4 14048 0t0 TCP localhost:9051 (ESTABLISHED)\n"},
		{name: "bad port", output: "tor 2001 atagar 14u IPv4 14048 0t0 TCP localhost:x->localhost:37277 (ESTABLISHED)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePortOwners(tt.output, []int{37277}, nil)
			assert.Error(t, err)
		})
	}
}

func TestProcessesForPorts(t *testing.T) {
	var gotArgs []string
	stubCommand(t, func(name string, args ...string) (string, error) {
		gotArgs = append([]string{name}, args...)
		return lsofPortOutput, nil
	})

	results, err := ProcessesForPorts(context.Background(), []int{37277}, []int{9051})
	require.NoError(t, err)
	assert.Equal(t, []string{"lsof", "-nP", "-i", "tcp:37277", "-i", "tcp:9051"}, gotArgs)
	assert.Equal(t, "python", results[37277].Name)
	assert.Equal(t, "firefox", results[9051].Name)
}

func TestProcessesForPorts_CommandFailure(t *testing.T) {
	stubCommand(t, func(string, ...string) (string, error) {
		return "", errors.New("lsof: not found")
	})

	_, err := ProcessesForPorts(context.Background(), []int{37277}, nil)
	assert.Error(t, err)
}

func TestCall(t *testing.T) {
	stubCommand(t, func(string, ...string) (string, error) {
		return "first\n\n  \nsecond\n", nil
	})

	lines, err := Call(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, lines)
}
