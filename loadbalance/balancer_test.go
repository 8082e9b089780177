package loadbalance

import (
	"fmt"
	"testing"

	"nx-ipc/registry"
)

func testInstances() []registry.ServiceInstance {
	insts := []registry.ServiceInstance{
		registry.NewInstance("demo", 1, 4),
		registry.NewInstance("demo", 2, 4),
		registry.NewInstance("demo", 3, 4),
	}
	insts[0].Weight = 10
	insts[1].Weight = 5
	insts[2].Weight = 10
	return insts
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}
	instances := testInstances()

	// Pick 3 times, should cycle through all instances in order
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(instances, "")
		if err != nil {
			t.Fatal(err)
		}
		if inst.Port != instances[i].Port {
			t.Fatalf("pick %d: expect port %d, got %d", i, instances[i].Port, inst.Port)
		}
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(instances, "")
	if inst.Port != instances[0].Port {
		t.Fatalf("expect wrap around to %d, got %d", instances[0].Port, inst.Port)
	}
}

func TestEmpty(t *testing.T) {
	for _, name := range []string{StrategyRoundRobin, StrategyWeightedRandom, StrategyConsistentHash} {
		b, err := New(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := b.Pick(nil, "key"); err != ErrNoInstances {
			t.Fatalf("%s: expect ErrNoInstances, got %v", b.Name(), err)
		}
	}
	if _, err := New("random"); err == nil {
		t.Fatal("expect error for unknown strategy")
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := testInstances()

	counts := map[uint32]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(instances, "")
		if err != nil {
			t.Fatal(err)
		}
		counts[uint32(inst.Port)]++
	}

	// Weight ratio is 10:5:10, so port 1 and 3 should be ~2x of port 2
	ratio := float64(counts[1]) / float64(counts[2])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio 1/2 = %.2f, expect ~2.0", ratio)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	instances := testInstances()

	// Same key should always map to the same instance
	inst1, _ := b.Pick(instances, "pid-123")
	inst2, _ := b.Pick(instances, "pid-123")
	if inst1.ID != inst2.ID {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.ID, inst2.ID)
	}

	// Different keys should (likely) map to different instances
	seen := map[uint32]bool{}
	for i := 0; i < 100; i++ {
		inst, _ := b.Pick(instances, fmt.Sprintf("pid-%d", i))
		seen[uint32(inst.Port)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}

	// Keys of a removed instance move; the others stay put.
	moved := 0
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("pid-%d", i)
		before, _ := b.Pick(instances, key)
		after, _ := b.Pick(instances[:2], key)
		if before.ID != after.ID {
			if before.ID != instances[2].ID {
				t.Fatalf("key %s moved off a surviving instance", key)
			}
			moved++
		}
	}
	if moved == 0 {
		t.Fatal("expect some keys to move off the removed instance")
	}
}
