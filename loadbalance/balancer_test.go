package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-jsonrpc/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: "http://h1:8001/rpc", Weight: 10, Version: "1.0"},
	{Addr: "http://h2:8002/rpc", Weight: 5, Version: "1.0"},
	{Addr: "http://h3:8003/rpc", Weight: 10, Version: "1.0"},
}

func TestNew(t *testing.T) {
	for _, name := range []string{RoundRobin, WeightedRandom, ConsistentHash} {
		b, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, b.Name())
	}

	b, err := New("")
	require.NoError(t, err)
	assert.Equal(t, RoundRobin, b.Name())

	_, err = New("random")
	assert.Error(t, err)
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	var got []string
	for i := 0; i < 4; i++ {
		inst, err := b.Pick(testInstances, "")
		require.NoError(t, err)
		got = append(got, inst.Addr)
	}
	assert.Equal(t, []string{
		testInstances[0].Addr,
		testInstances[1].Addr,
		testInstances[2].Addr,
		testInstances[0].Addr,
	}, got)
}

func TestEmptyInstances(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		_, err := b.Pick(nil, "Arith.Add")
		assert.ErrorIs(t, err, ErrNoInstances, b.Name())
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		inst, err := b.Pick(testInstances, "")
		require.NoError(t, err)
		counts[inst.Addr]++
	}

	// Weights are 10:5:10, so h1 should see about twice the traffic of h2.
	ratio := float64(counts[testInstances[0].Addr]) / float64(counts[testInstances[1].Addr])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := []registry.ServiceInstance{{Addr: "a"}, {Addr: "b", Weight: -3}}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		inst, err := b.Pick(instances, "")
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.Len(t, seen, 2)
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()

	inst1, err := b.Pick(testInstances, "Arith.Add")
	require.NoError(t, err)
	inst2, err := b.Pick(testInstances, "Arith.Add")
	require.NoError(t, err)
	assert.Equal(t, inst1.Addr, inst2.Addr)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.Pick(testInstances, fmt.Sprintf("Svc.Method%d", i))
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestConsistentHashRebuildsOnChange(t *testing.T) {
	b := NewConsistentHashBalancer()

	inst, err := b.Pick(testInstances, "Arith.Add")
	require.NoError(t, err)

	// Drop the chosen instance: the key must move to one that is still present.
	var rest []registry.ServiceInstance
	for _, i := range testInstances {
		if i.Addr != inst.Addr {
			rest = append(rest, i)
		}
	}
	moved, err := b.Pick(rest, "Arith.Add")
	require.NoError(t, err)
	assert.NotEqual(t, inst.Addr, moved.Addr)

	// Order of the list does not matter.
	reversed := []registry.ServiceInstance{testInstances[2], testInstances[1], testInstances[0]}
	again, err := b.Pick(reversed, "Arith.Add")
	require.NoError(t, err)
	assert.Equal(t, inst.Addr, again.Addr)
}
