package ring

import (
	"cmp"
	"errors"
	"hash/fnv"
	"sort"
	"strconv"

	"golang.org/x/exp/slices"
)

// DefaultReplicas is the number of virtual points per node when none is given.
const DefaultReplicas = 64

// ErrNoNodesConfigured is returned when resolving a key on an empty ring.
var ErrNoNodesConfigured = errors.New("ring: no nodes configured")

// Node represents a physical cache node on the ring.
type Node struct {
	ID   string
	Addr string
}

// Point is a virtual node position on the ring.
type Point struct {
	Hash   uint32
	NodeID string
}

// Ring implements consistent hashing with virtual nodes.
// A Ring is read-only once Build returns and is safe for concurrent Resolve calls.
type Ring struct {
	replicas int
	points   []Point         // sorted by Hash, unique
	nodes    map[string]Node // nodeID -> Node
}

// NewRing creates an empty ring with the given number of virtual points per node.
func NewRing(replicas int) *Ring {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	return &Ring{
		replicas: replicas,
		points:   make([]Point, 0),
		nodes:    make(map[string]Node),
	}
}

// Build creates a ring from nodes in one step.
func Build(nodes []Node, replicas int) *Ring {
	r := NewRing(replicas)
	r.setNodes(nodes)
	return r
}

// setNodes fills the ring from the given nodes.
// Each node contributes replicas points at Hash(ID + "#" + i). Two points with
// the same hash collapse into one; the node inserted last keeps it.
func (r *Ring) setNodes(nodes []Node) {
	byHash := make(map[uint32]string, len(nodes)*r.replicas)
	r.nodes = make(map[string]Node, len(nodes))

	for _, node := range nodes {
		r.nodes[node.ID] = node
		for i := 0; i < r.replicas; i++ {
			byHash[Hash(pointKey(node.ID, i))] = node.ID
		}
	}

	points := make([]Point, 0, len(byHash))
	for h, id := range byHash {
		points = append(points, Point{Hash: h, NodeID: id})
	}
	slices.SortFunc(points, func(a, b Point) int {
		return cmp.Compare(a.Hash, b.Hash)
	})
	r.points = points
}

// Resolve returns the node owning key: the node at the first point whose hash
// is >= Hash(key), wrapping to the smallest point past the end of the ring.
func (r *Ring) Resolve(key string) (Node, error) {
	idx, err := r.successor(Hash(key))
	if err != nil {
		return Node{}, err
	}
	return r.nodes[r.points[idx].NodeID], nil
}

func (r *Ring) successor(h uint32) (int, error) {
	if len(r.points) == 0 {
		return 0, ErrNoNodesConfigured
	}

	// Binary search for first point with hash >= h
	idx := sort.Search(len(r.points), func(i int) bool {
		return r.points[i].Hash >= h
	})

	// Wrap around if h is greater than all points
	if idx >= len(r.points) {
		idx = 0
	}
	return idx, nil
}

// Points returns a copy of the ring points in hash order.
func (r *Ring) Points() []Point {
	return append([]Point(nil), r.points...)
}

// Len returns the number of distinct points on the ring.
func (r *Ring) Len() int {
	return len(r.points)
}

// Replicas returns the number of virtual points per node.
func (r *Ring) Replicas() int {
	return r.replicas
}

// Nodes returns all nodes in the ring, ordered by ID.
func (r *Ring) Nodes() []Node {
	nodes := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	slices.SortFunc(nodes, func(a, b Node) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return nodes
}

// Hash computes the 32-bit FNV-1a hash of s.
func Hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func pointKey(id string, i int) string {
	return id + "#" + strconv.Itoa(i)
}
