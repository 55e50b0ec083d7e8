// Package ivf provides an Inverted-File index: k-means cluster centroids
// with per-centroid posting lists, probed nearest-first at query time.
package ivf

import (
	"math"
	"math/rand"
	"slices"
	"sort"

	"github.com/quiverdb/quiver/distance"
	"github.com/quiverdb/quiver/index"
	"github.com/quiverdb/quiver/internal/queue"
)

// Compile-time check to ensure Index satisfies the index contract.
var _ index.Index = (*Index)(nil)

const (
	// DefaultMaxIterations caps Lloyd's algorithm during rebuild.
	DefaultMaxIterations = 25

	// DefaultSeed seeds centroid sampling for reproducible builds.
	DefaultSeed = 42
)

// Options contains configuration options for the IVF index.
type Options struct {
	// NumClusters is the number of centroids k_c. Zero selects
	// max(1, floor(sqrt(n))) at rebuild time.
	NumClusters int

	// NProbe is the number of clusters probed per search. Zero selects
	// max(1, ceil(k_c/4)).
	NProbe int

	// MaxIterations caps Lloyd's iterations during rebuild.
	MaxIterations int

	// Seed seeds the PRNG used for centroid initialization.
	Seed int64
}

// DefaultOptions contains the default configuration options for the IVF index.
var DefaultOptions = Options{
	MaxIterations: DefaultMaxIterations,
	Seed:          DefaultSeed,
}

// Index is an inverted-file index. Rebuild runs Lloyd's k-means; Add
// assigns to the nearest existing centroid without moving it, so centroid
// drift accumulates until the next explicit Rebuild.
type Index struct {
	opts Options

	dim         int
	centroids   [][]float32
	postings    map[int]map[string]struct{}
	vectors     map[string][]float32
	assignments map[string]int

	addsSinceRebuild int
}

// Stats reports index shape for observability.
type Stats struct {
	Items            int
	Clusters         int
	NProbe           int
	AddsSinceRebuild int
}

// New creates an empty IVF index.
func New(optFns ...func(o *Options)) *Index {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	return &Index{
		opts:        opts,
		postings:    make(map[int]map[string]struct{}),
		vectors:     make(map[string][]float32),
		assignments: make(map[string]int),
	}
}

// Rebuild replaces all internal state and trains fresh centroids with
// Lloyd's k-means over the given items.
func (idx *Index) Rebuild(items []index.Item) error {
	idx.dim = 0
	idx.centroids = nil
	idx.postings = make(map[int]map[string]struct{})
	idx.vectors = make(map[string][]float32, len(items))
	idx.assignments = make(map[string]int, len(items))
	idx.addsSinceRebuild = 0

	for _, item := range items {
		if err := index.ValidateVector(idx.dim, item.Vector); err != nil {
			return err
		}
		if idx.dim == 0 {
			idx.dim = len(item.Vector)
		}
		idx.vectors[item.ID] = slices.Clone(item.Vector)
	}

	if len(idx.vectors) == 0 {
		return nil
	}

	idx.train()
	return nil
}

// train runs Lloyd's k-means over the current vectors and rebuilds the
// posting lists. Iteration order is fixed by sorting ids so that a given
// seed always produces the same clustering.
func (idx *Index) train() {
	ids := make([]string, 0, len(idx.vectors))
	for id := range idx.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	n := len(ids)
	kc := idx.opts.NumClusters
	if kc <= 0 {
		kc = int(math.Sqrt(float64(n)))
	}
	kc = max(1, min(kc, n))

	// Initialize centroids by sampling without replacement.
	rng := rand.New(rand.NewSource(idx.opts.Seed))
	perm := rng.Perm(n)
	centroids := make([][]float32, kc)
	for i := 0; i < kc; i++ {
		centroids[i] = slices.Clone(idx.vectors[ids[perm[i]]])
	}

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < idx.opts.MaxIterations; iter++ {
		changed := false
		for i, id := range ids {
			best := nearestCentroid(idx.vectors[id], centroids)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		// Recompute each centroid as the normalized mean of its members.
		members := make([][][]float32, kc)
		for i, id := range ids {
			c := assign[i]
			members[c] = append(members[c], idx.vectors[id])
		}
		for c := 0; c < kc; c++ {
			if len(members[c]) == 0 {
				// Reseed the empty cluster to the vector farthest from
				// its current centroid.
				centroids[c] = slices.Clone(idx.vectors[ids[farthestFromCentroid(ids, assign, idx.vectors, centroids)]])
				continue
			}
			mean := distance.Centroid(members[c])
			distance.NormalizeL2InPlace(mean)
			centroids[c] = mean
		}
	}

	idx.centroids = centroids
	idx.postings = make(map[int]map[string]struct{}, kc)
	for i, id := range ids {
		c := assign[i]
		if c < 0 {
			c = nearestCentroid(idx.vectors[id], centroids)
		}
		idx.insertPosting(id, c)
	}
}

// Add assigns the item to its nearest centroid. Centroids are not updated
// incrementally; drift is accepted until the next Rebuild.
func (idx *Index) Add(item index.Item) error {
	if err := index.ValidateVector(idx.dim, item.Vector); err != nil {
		return err
	}
	if idx.dim == 0 {
		idx.dim = len(item.Vector)
	}

	vec := slices.Clone(item.Vector)
	idx.vectors[item.ID] = vec

	// An index that has never been trained bootstraps its first centroid
	// from the incoming vector.
	if len(idx.centroids) == 0 {
		idx.centroids = [][]float32{slices.Clone(vec)}
	}

	idx.insertPosting(item.ID, nearestCentroid(vec, idx.centroids))
	idx.addsSinceRebuild++
	return nil
}

// Remove erases the item from its posting list and the vector map.
func (idx *Index) Remove(id string) {
	c, ok := idx.assignments[id]
	if ok {
		delete(idx.postings[c], id)
		delete(idx.assignments, id)
	}
	delete(idx.vectors, id)
}

// Search scores all centroids, probes the nearest n_probe posting lists
// and scores their members exactly.
func (idx *Index) Search(query []float32, k int) ([]index.SearchResult, error) {
	if err := index.ValidateQuery(idx.dim, query, k); err != nil {
		return nil, err
	}
	if len(idx.vectors) == 0 {
		return nil, nil
	}

	probes := idx.nprobe()
	nearest := nearestCentroids(query, idx.centroids, probes)

	top := queue.NewMax()
	for _, c := range nearest {
		for id := range idx.postings[c] {
			d := distance.CosineDistance(query, idx.vectors[id])
			top.PushBounded(queue.Item{ID: id, Distance: d}, k)
		}
	}

	return index.CollectTopK(top), nil
}

// Len returns the number of items currently indexed.
func (idx *Index) Len() int {
	return len(idx.vectors)
}

// Stats reports the current index shape.
func (idx *Index) Stats() Stats {
	return Stats{
		Items:            len(idx.vectors),
		Clusters:         len(idx.centroids),
		NProbe:           idx.nprobe(),
		AddsSinceRebuild: idx.addsSinceRebuild,
	}
}

func (idx *Index) nprobe() int {
	if idx.opts.NProbe > 0 {
		return idx.opts.NProbe
	}
	kc := len(idx.centroids)
	return max(1, (kc+3)/4)
}

func (idx *Index) insertPosting(id string, c int) {
	if idx.postings[c] == nil {
		idx.postings[c] = make(map[string]struct{})
	}
	idx.postings[c][id] = struct{}{}
	idx.assignments[id] = c
}

// nearestCentroid returns the index of the centroid closest to vec by
// cosine distance, ties broken by lowest centroid index.
func nearestCentroid(vec []float32, centroids [][]float32) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for i, c := range centroids {
		if d := distance.CosineDistance(vec, c); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// nearestCentroids returns the indices of the n closest centroids to the
// query, nearest first.
func nearestCentroids(query []float32, centroids [][]float32, n int) []int {
	type scored struct {
		idx  int
		dist float32
	}
	dists := make([]scored, len(centroids))
	for i, c := range centroids {
		dists[i] = scored{idx: i, dist: distance.CosineDistance(query, c)}
	}
	sort.Slice(dists, func(i, j int) bool {
		if dists[i].dist != dists[j].dist {
			return dists[i].dist < dists[j].dist
		}
		return dists[i].idx < dists[j].idx
	})

	n = min(n, len(dists))
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = dists[i].idx
	}
	return out
}

// farthestFromCentroid returns the position in ids of the vector with the
// largest distance to its assigned centroid.
func farthestFromCentroid(ids []string, assign []int, vectors map[string][]float32, centroids [][]float32) int {
	worst := 0
	worstDist := float32(-1)
	for i, id := range ids {
		c := assign[i]
		if c < 0 || c >= len(centroids) {
			continue
		}
		if d := distance.CosineDistance(vectors[id], centroids[c]); d > worstDist {
			worstDist = d
			worst = i
		}
	}
	return worst
}
