// Package nsw provides a Navigable Small World index: a bidirectional
// proximity graph searched with an ef-bounded greedy walk.
package nsw

import (
	"slices"
	"sort"

	"github.com/quiverdb/quiver/distance"
	"github.com/quiverdb/quiver/index"
	"github.com/quiverdb/quiver/internal/queue"
)

// Compile-time check to ensure Index satisfies the index contract.
var _ index.Index = (*Index)(nil)

const (
	// DefaultM is the default target degree per node.
	DefaultM = 8

	// DefaultEFConstruction is the default candidate list size during insert.
	DefaultEFConstruction = 32

	// DefaultEFSearch is the default candidate list size during query.
	// The effective ef is max(k, EFSearch).
	DefaultEFSearch = 32
)

// Options contains configuration options for the NSW index.
type Options struct {
	// M is the target number of bidirectional links per node.
	M int

	// EFConstruction is the candidate list size while inserting.
	EFConstruction int

	// EFSearch is the candidate list size while querying.
	EFSearch int
}

// DefaultOptions contains the default configuration options for the NSW index.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	EFSearch:       DefaultEFSearch,
}

type node struct {
	vector    []float32
	neighbors map[string]struct{}
}

// Index is a single-layer small-world graph. Edges are symmetric and
// stored by id in adjacency sets, so removal never chases pointers.
type Index struct {
	opts Options

	dim   int
	nodes map[string]*node
	entry string
}

// New creates an empty NSW index.
func New(optFns ...func(o *Options)) *Index {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.M <= 0 {
		opts.M = DefaultM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}
	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultEFSearch
	}

	return &Index{opts: opts, nodes: make(map[string]*node)}
}

// Rebuild replaces all internal state, inserting items in ascending id
// order so a rebuild from the same records yields the same graph.
func (idx *Index) Rebuild(items []index.Item) error {
	idx.dim = 0
	idx.nodes = make(map[string]*node, len(items))
	idx.entry = ""

	ordered := make([]index.Item, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, item := range ordered {
		if err := idx.Add(item); err != nil {
			return err
		}
	}
	return nil
}

// Add inserts the item, links it to its nearest M neighbors found by a
// greedy walk, and prunes any neighbor whose degree exceeds 2*M back down
// to its M closest links.
func (idx *Index) Add(item index.Item) error {
	if err := index.ValidateVector(idx.dim, item.Vector); err != nil {
		return err
	}
	if idx.dim == 0 {
		idx.dim = len(item.Vector)
	}

	vec := slices.Clone(item.Vector)

	if old, ok := idx.nodes[item.ID]; ok {
		// Re-adding an existing id replaces its vector but keeps the edges.
		old.vector = vec
		return nil
	}

	n := &node{vector: vec, neighbors: make(map[string]struct{})}

	if len(idx.nodes) == 0 {
		idx.nodes[item.ID] = n
		idx.entry = item.ID
		return nil
	}

	nearest := idx.greedy(vec, idx.entry, idx.opts.EFConstruction)
	if len(nearest) > idx.opts.M {
		nearest = nearest[:idx.opts.M]
	}

	idx.nodes[item.ID] = n
	for _, cand := range nearest {
		n.neighbors[cand.ID] = struct{}{}
		idx.nodes[cand.ID].neighbors[item.ID] = struct{}{}
		idx.pruneNeighbors(cand.ID)
	}
	return nil
}

// Remove drops the node and every edge pointing at it, then stitches its
// former neighbors to each other so the component does not split. A
// removed entry point is replaced by the surviving node with the highest
// degree, ties broken by ascending id.
func (idx *Index) Remove(id string) {
	n, ok := idx.nodes[id]
	if !ok {
		return
	}

	orphans := make([]string, 0, len(n.neighbors))
	for neighbor := range n.neighbors {
		if other, ok := idx.nodes[neighbor]; ok {
			delete(other.neighbors, id)
			orphans = append(orphans, neighbor)
		}
	}
	delete(idx.nodes, id)

	// Link under-connected former neighbors to each other.
	sort.Strings(orphans)
	for i, a := range orphans {
		na := idx.nodes[a]
		for j := i + 1; j < len(orphans) && len(na.neighbors) < idx.opts.M; j++ {
			b := orphans[j]
			if _, linked := na.neighbors[b]; linked {
				continue
			}
			na.neighbors[b] = struct{}{}
			idx.nodes[b].neighbors[a] = struct{}{}
			idx.pruneNeighbors(b)
		}
	}

	if idx.entry == id {
		idx.entry = idx.promoteEntry()
	}
}

// Search runs the greedy walk with ef = max(k, EFSearch) and converts
// distances to similarity scores.
func (idx *Index) Search(query []float32, k int) ([]index.SearchResult, error) {
	if err := index.ValidateQuery(idx.dim, query, k); err != nil {
		return nil, err
	}
	if len(idx.nodes) == 0 {
		return nil, nil
	}

	ef := max(k, idx.opts.EFSearch)
	nearest := idx.greedy(query, idx.entry, ef)
	if len(nearest) > k {
		nearest = nearest[:k]
	}

	results := make([]index.SearchResult, len(nearest))
	for i, cand := range nearest {
		results[i] = index.SearchResult{ID: cand.ID, Score: 1 - cand.Distance}
	}
	return results, nil
}

// Len returns the number of nodes in the graph.
func (idx *Index) Len() int {
	return len(idx.nodes)
}

// greedy walks the graph from entry toward q, keeping an ef-bounded result
// set. Returned candidates are sorted ascending by distance, ties by id.
func (idx *Index) greedy(q []float32, entry string, ef int) []queue.Item {
	entryDist := distance.CosineDistance(q, idx.nodes[entry].vector)

	visited := map[string]struct{}{entry: {}}
	candidates := queue.NewMin()
	results := queue.NewMax()

	candidates.Push(queue.Item{ID: entry, Distance: entryDist})
	results.PushBounded(queue.Item{ID: entry, Distance: entryDist}, ef)

	for candidates.Len() > 0 {
		current, _ := candidates.Pop()

		if results.Len() == ef {
			if worst, _ := results.Top(); current.Distance > worst.Distance {
				break
			}
		}

		for neighbor := range idx.nodes[current.ID].neighbors {
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = struct{}{}

			d := distance.CosineDistance(q, idx.nodes[neighbor].vector)
			candidates.Push(queue.Item{ID: neighbor, Distance: d})
			results.PushBounded(queue.Item{ID: neighbor, Distance: d}, ef)
		}
	}

	out := results.Drain()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// pruneNeighbors trims a node whose degree exceeded 2*M down to its M
// closest neighbors, dropping the reverse edges of evicted links so the
// graph stays symmetric.
func (idx *Index) pruneNeighbors(id string) {
	n := idx.nodes[id]
	if len(n.neighbors) <= 2*idx.opts.M {
		return
	}

	ranked := make([]queue.Item, 0, len(n.neighbors))
	for neighbor := range n.neighbors {
		ranked = append(ranked, queue.Item{
			ID:       neighbor,
			Distance: distance.CosineDistance(n.vector, idx.nodes[neighbor].vector),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].ID < ranked[j].ID
	})

	for _, evicted := range ranked[idx.opts.M:] {
		delete(n.neighbors, evicted.ID)
		if other, ok := idx.nodes[evicted.ID]; ok {
			delete(other.neighbors, id)
		}
	}
}

// promoteEntry selects a new entry point: the node with the highest
// degree, ties broken by ascending id. Returns "" for an empty graph.
func (idx *Index) promoteEntry() string {
	best := ""
	bestDegree := -1
	for id, n := range idx.nodes {
		if len(n.neighbors) > bestDegree || (len(n.neighbors) == bestDegree && id < best) {
			best = id
			bestDegree = len(n.neighbors)
		}
	}
	return best
}
