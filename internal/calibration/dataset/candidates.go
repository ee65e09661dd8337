package dataset

import (
	"errors"
	"math/rand"
	"sort"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/static-calibration/internal/calibration/assign"
	"github.com/banshee-data/static-calibration/internal/calibration/camera"
	"github.com/banshee-data/static-calibration/internal/monitoring"
)

// ErrSearchExhausted is returned when subset enumeration hits its budget.
// The subsets found before the budget ran out are still returned.
var ErrSearchExhausted = errors.New("candidate search exhausted its subset budget")

// SearchOptions tunes candidate generation and enumeration.
type SearchOptions struct {
	// MaxDistance is the pixel radius within which a projected road mark is
	// a candidate for an image object.
	MaxDistance float64
	// MaxElementsInDistance caps the edges kept per image object.
	MaxElementsInDistance int
	// MaxElementsPerMapping bounds candidate set size and the flattened edge
	// list. Zero or negative disables both bounds.
	MaxElementsPerMapping int

	Sort            bool
	KeepOnlyLongest bool
	Shuffle         bool
	Seed            int64

	// MaxDepth rejects road marks farther than this from the camera.
	// Zero means camera.DefaultMaxDepth.
	MaxDepth float64
	// MaxSubsets stops enumeration with ErrSearchExhausted once this many
	// subsets were emitted. Zero means unbounded.
	MaxSubsets int
}

func (o SearchOptions) maxDepth() float64 {
	if o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return camera.DefaultMaxDepth
}

// CandidateEdge proposes pairing a road mark with an image object.
type CandidateEdge struct {
	Distance float64
	WorldID  string
	ImageID  string
}

// conflicts reports whether e reuses a world or image id already in chosen.
func conflicts(chosen []CandidateEdge, e CandidateEdge) bool {
	for _, c := range chosen {
		if c.WorldID == e.WorldID || c.ImageID == e.ImageID {
			return true
		}
	}
	return false
}

// CandidateEdges proposes road marks for every image object that the
// explicit mapping does not already use. A road mark qualifies when its mid
// point lies within the depth window and projects within MaxDistance of the
// image object's mid. Edges are grouped by image id, ascending by distance,
// and truncated to MaxElementsInDistance per group when that is positive.
func (ds *DataSet) CandidateEdges(ext camera.Extrinsics, in camera.Intrinsics, opts SearchOptions) map[string][]CandidateEdge {
	maxDepth := opts.maxDepth()
	out := make(map[string][]CandidateEdge)

	for _, img := range ds.images.resolved() {
		if ds.mapping.HasImage(img.ID()) {
			continue
		}
		var edges []CandidateEdge
		for _, mark := range ds.roadMarks.resolved() {
			mid := mark.Mid()
			if !camera.InDepthWindow(ext, mid, maxDepth) {
				continue
			}
			px, behind := camera.Render(ext, in, mid)
			if behind {
				continue
			}
			d := px.Sub(img.Mid()).Norm()
			if d > opts.MaxDistance {
				continue
			}
			edges = append(edges, CandidateEdge{Distance: d, WorldID: mark.ID(), ImageID: img.ID()})
		}
		if len(edges) == 0 {
			continue
		}
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].Distance < edges[j].Distance })
		if opts.MaxElementsInDistance > 0 && len(edges) > opts.MaxElementsInDistance {
			edges = edges[:opts.MaxElementsInDistance]
		}
		out[img.ID()] = edges
	}
	return out
}

// EnumerateConflictFree returns every subset of edges in which no world id
// and no image id repeats, including the empty subset and all partial ones,
// in depth-first order. Subsets hold at most maxDepth edges when maxDepth is
// positive. When budget is positive and enumeration would emit more than
// budget subsets, it stops and returns what it has with ErrSearchExhausted.
func EnumerateConflictFree(edges []CandidateEdge, maxDepth, budget int) ([][]CandidateEdge, error) {
	e := enumerator{edges: edges, maxDepth: maxDepth, budget: budget}
	err := e.visit(nil, 0)
	return e.out, err
}

type enumerator struct {
	edges    []CandidateEdge
	maxDepth int
	budget   int
	out      [][]CandidateEdge
}

func (e *enumerator) visit(chosen []CandidateEdge, from int) error {
	if e.maxDepth > 0 && len(chosen) > e.maxDepth {
		return nil
	}
	if e.budget > 0 && len(e.out) >= e.budget {
		return ErrSearchExhausted
	}
	e.out = append(e.out, chosen)

	for i := from; i < len(e.edges); i++ {
		if conflicts(chosen, e.edges[i]) {
			continue
		}
		// Fresh backing array per branch so emitted subsets never alias.
		next := make([]CandidateEdge, len(chosen)+1)
		copy(next, chosen)
		next[len(chosen)] = e.edges[i]
		if err := e.visit(next, i+1); err != nil {
			return err
		}
	}
	return nil
}

// CreateAllMappings runs both search phases and returns the candidate
// mapping sets, each keyed world id to image id so it can be installed with
// SetMappingExtension. With no candidate edges the result is a single empty
// mapping. ErrSearchExhausted is returned alongside the sets found so far.
func (ds *DataSet) CreateAllMappings(ext camera.Extrinsics, in camera.Intrinsics, opts SearchOptions) ([]Mapping, error) {
	grouped := ds.CandidateEdges(ext, in, opts)

	imageIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		imageIDs = append(imageIDs, id)
	}
	sort.Strings(imageIDs)

	var flat []CandidateEdge
	for _, id := range imageIDs {
		flat = append(flat, grouped[id]...)
	}
	if opts.MaxElementsPerMapping > 0 && len(flat) > opts.MaxElementsPerMapping {
		flat = flat[:opts.MaxElementsPerMapping]
	}
	monitoring.Diagf("candidate search: %d images, %d edges", len(imageIDs), len(flat))

	subsets, err := EnumerateConflictFree(flat, opts.MaxElementsPerMapping, opts.MaxSubsets)
	if err != nil {
		monitoring.Opsf("candidate search stopped after %d subsets: %v", len(subsets), err)
	}

	sets := make([]Mapping, len(subsets))
	for i, subset := range subsets {
		m := make(Mapping, len(subset))
		for _, e := range subset {
			m[e.WorldID] = e.ImageID
		}
		sets[i] = m
	}

	if opts.Sort || opts.KeepOnlyLongest {
		sort.SliceStable(sets, func(i, j int) bool { return len(sets[i]) > len(sets[j]) })
	}
	if opts.KeepOnlyLongest {
		sets = keepOnlyLongest(sets)
	}
	if opts.Shuffle {
		r := rand.New(rand.NewSource(opts.Seed))
		r.Shuffle(len(sets), func(i, j int) { sets[i], sets[j] = sets[j], sets[i] })
	}
	return sets, err
}

// keepOnlyLongest expects sets sorted by descending size.
func keepOnlyLongest(sets []Mapping) []Mapping {
	if len(sets) == 0 {
		return sets
	}
	longest := len(sets[0])
	out := sets[:0]
	for _, s := range sets {
		if len(s) == longest {
			out = append(out, s)
		}
	}
	return out
}

// ScoredMapping is a candidate set with its Evaluate score.
type ScoredMapping struct {
	Mapping Mapping
	Error   float64
}

// ScoreMappings evaluates each candidate set as the mapping extension and
// returns them ascending by error. The store's extension is restored
// afterwards.
func (ds *DataSet) ScoreMappings(ext camera.Extrinsics, in camera.Intrinsics, sets []Mapping) []ScoredMapping {
	previous := ds.extension
	defer ds.SetMappingExtension(previous)

	scored := make([]ScoredMapping, 0, len(sets))
	for i, s := range sets {
		ds.extension = s
		score := ds.Evaluate(ext, in)
		monitoring.Tracef("candidate %d: %d entries, error %.3f", i, len(s), score)
		scored = append(scored, ScoredMapping{Mapping: s.Clone(), Error: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Error < scored[j].Error })
	return scored
}

// SelectBestMapping scores sets and installs the lowest-error one as the
// mapping extension. It returns every score, best first. ok is false, and
// the store untouched, when sets is empty.
func (ds *DataSet) SelectBestMapping(ext camera.Extrinsics, in camera.Intrinsics, sets []Mapping) (scored []ScoredMapping, ok bool) {
	scored = ds.ScoreMappings(ext, in, sets)
	if len(scored) == 0 {
		return nil, false
	}
	ds.SetMappingExtension(scored[0].Mapping)
	monitoring.Diagf("selected candidate with %d entries, error %.3f", len(scored[0].Mapping), scored[0].Error)
	return scored, true
}

// AssignNearest pairs the image objects left out of the explicit mapping
// with road marks one-to-one, minimising the total pixel distance between
// projected mark mids and image mids. Pairs farther than MaxDistance or
// outside the depth window are never made. Road marks already used by the
// explicit mapping are not offered.
func (ds *DataSet) AssignNearest(ext camera.Extrinsics, in camera.Intrinsics, opts SearchOptions) Mapping {
	maxDepth := opts.maxDepth()

	var images []string
	var mids []r2.Point
	for _, img := range ds.images.resolved() {
		if ds.mapping.HasImage(img.ID()) {
			continue
		}
		images = append(images, img.ID())
		mids = append(mids, img.Mid())
	}

	type projectedMark struct {
		id    string
		pixel r2.Point
		ok    bool
	}
	var marks []projectedMark
	for _, mark := range ds.roadMarks.resolved() {
		if _, used := ds.mapping[mark.ID()]; used {
			continue
		}
		px, behind := camera.Render(ext, in, mark.Mid())
		marks = append(marks, projectedMark{
			id:    mark.ID(),
			pixel: px,
			ok:    !behind && camera.InDepthWindow(ext, mark.Mid(), maxDepth),
		})
	}

	out := Mapping{}
	if len(images) == 0 || len(marks) == 0 {
		return out
	}

	// Costs are squared pixel distances.
	cost := make([][]float64, len(images))
	for i := range images {
		cost[i] = make([]float64, len(marks))
		for j, m := range marks {
			if !m.ok {
				cost[i][j] = assign.Forbidden
				continue
			}
			d := m.pixel.Sub(mids[i])
			cost[i][j] = d.Dot(d)
		}
	}

	limit := opts.MaxDistance * opts.MaxDistance
	for i, j := range assign.Hungarian(assign.Gate(cost, limit)) {
		if j < 0 || cost[i][j] > limit {
			continue
		}
		out[marks[j].id] = images[i]
	}
	monitoring.Diagf("nearest assignment: %d of %d images paired", len(out), len(images))
	return out
}
