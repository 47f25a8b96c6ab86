package ring

import (
	"errors"
	"fmt"
	"testing"
)

func threeNodes() []Node {
	return []Node{
		{ID: "node1", Addr: "127.0.0.1:50051"},
		{ID: "node2", Addr: "127.0.0.1:50052"},
		{ID: "node3", Addr: "127.0.0.1:50053"},
	}
}

func TestRing_Resolve(t *testing.T) {
	ring := Build(threeNodes(), 64)

	// Test that same key always maps to same node (determinism)
	key := "test-key-123"
	node1, err := ring.Resolve(key)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	node2, err := ring.Resolve(key)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if node1.ID != node2.ID {
		t.Errorf("Determinism failed: same key mapped to different nodes: %s vs %s", node1.ID, node2.ID)
	}
	if node1.Addr == "" {
		t.Error("Expected resolved node to carry its address")
	}
}

func TestRing_Determinism(t *testing.T) {
	ring1 := Build(threeNodes(), 64)
	ring2 := Build(threeNodes(), 64)

	testKeys := []string{"key1", "key2", "key3", "key4", "key5", "key100", "key999"}

	for _, key := range testKeys {
		node1, _ := ring1.Resolve(key)
		node2, _ := ring2.Resolve(key)
		if node1.ID != node2.ID {
			t.Errorf("Determinism failed for key %s: %s != %s", key, node1.ID, node2.ID)
		}
	}
}

func TestRing_Distribution(t *testing.T) {
	ring := Build(threeNodes(), 128)

	distribution := make(map[string]int)
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("key-%d", i)
		node, err := ring.Resolve(key)
		if err != nil {
			t.Fatalf("Expected to find node for key %s: %v", key, err)
		}
		distribution[node.ID]++
	}

	if len(distribution) != 3 {
		t.Errorf("Expected 3 nodes to have keys, got %d", len(distribution))
	}

	// Sanity check: no single node owns almost everything
	for nodeID, count := range distribution {
		percentage := float64(count) / float64(numKeys) * 100
		if percentage > 90 {
			t.Errorf("Node %s has %.2f%% of keys (too high)", nodeID, percentage)
		}
	}
}

func TestRing_EmptyRing(t *testing.T) {
	ring := NewRing(64)
	node, err := ring.Resolve("any-key")
	if !errors.Is(err, ErrNoNodesConfigured) {
		t.Errorf("Expected ErrNoNodesConfigured, got %v", err)
	}
	if node.ID != "" {
		t.Error("Expected empty node for empty ring")
	}
}

func TestRing_DefaultReplicas(t *testing.T) {
	ring := NewRing(0)
	if ring.Replicas() != DefaultReplicas {
		t.Errorf("Expected %d replicas, got %d", DefaultReplicas, ring.Replicas())
	}
}

func TestRing_PointsSorted(t *testing.T) {
	ring := Build(threeNodes(), 32)
	points := ring.Points()
	for i := 1; i < len(points); i++ {
		if points[i-1].Hash >= points[i].Hash {
			t.Fatalf("Points not strictly ascending at %d: %d >= %d", i, points[i-1].Hash, points[i].Hash)
		}
	}
}

func TestRing_Nodes(t *testing.T) {
	ring := Build([]Node{{ID: "b"}, {ID: "c"}, {ID: "a"}}, 4)
	nodes := ring.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(nodes))
	}
	if nodes[0].ID != "a" || nodes[1].ID != "b" || nodes[2].ID != "c" {
		t.Errorf("Expected nodes ordered by ID, got %v", nodes)
	}
}

func TestHash_FNV1a(t *testing.T) {
	// Reference values for 32-bit FNV-1a.
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 2166136261},
		{"a", 0xe40c292c},
		{"foobar", 0xbf9cf968},
	}
	for _, tt := range tests {
		if got := Hash(tt.in); got != tt.want {
			t.Errorf("Hash(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}
