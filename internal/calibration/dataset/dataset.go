// Package dataset is the correspondence store: it owns the surveyed world
// objects, the image detections and the mappings between them, derives the
// parametric points handed to the solver, and searches for additional
// candidate mappings under a hypothesised camera.
//
// Two mapping tables coexist. The explicit mapping is user supplied; the
// mapping extension holds inferred candidates. Their merge, with extension
// entries taking precedence, drives point derivation and evaluation.
// After any mutator returns, the parametric points are consistent with the
// current merged mapping.
//
// A DataSet is not safe for concurrent use.
package dataset

import (
	"github.com/golang/geo/r2"

	"github.com/banshee-data/static-calibration/internal/calibration/camera"
	"github.com/banshee-data/static-calibration/internal/calibration/objects"
)

// DataSet is the correspondence store.
type DataSet struct {
	poles     collection[objects.Pole]
	roadMarks collection[objects.RoadMark]
	images    collection[objects.ImageObject]

	mapping   Mapping
	extension Mapping

	polePoints     []objects.ParametricPoint
	roadMarkPoints []objects.ParametricPoint

	// weights is append-only; points address it through WeightIndex.
	weights []float64
}

// New returns a store holding the given entities and explicit mapping, with
// parametric points already derived.
func New(poles []objects.Pole, roadMarks []objects.RoadMark, images []objects.ImageObject, mapping Mapping) *DataSet {
	ds := &DataSet{
		poles:     newCollection(poles),
		roadMarks: newCollection(roadMarks),
		images:    newCollection(images),
		mapping:   mapping.Clone(),
		extension: Mapping{},
	}
	ds.Merge()
	return ds
}

// AddPole appends a pole without mapping it. Points are rebuilt when the
// merged mapping already references the pole's id.
func (ds *DataSet) AddPole(p objects.Pole) {
	_, shadowed := ds.poles.get(p.ID())
	ds.poles.add(p)
	if !shadowed && ds.referencesWorld(p.ID()) {
		ds.Merge()
	}
}

// AddRoadMark appends a road mark without mapping it. Points are rebuilt
// when the merged mapping already references the mark's id.
func (ds *DataSet) AddRoadMark(m objects.RoadMark) {
	_, shadowed := ds.roadMarks.get(m.ID())
	ds.roadMarks.add(m)
	if !shadowed && ds.referencesWorld(m.ID()) {
		ds.Merge()
	}
}

// AddImageObject appends an image detection without mapping it. Points are
// rebuilt when the merged mapping already references the detection's id.
func (ds *DataSet) AddImageObject(o objects.ImageObject) {
	_, shadowed := ds.images.get(o.ID())
	ds.images.add(o)
	if !shadowed && ds.MergedMapping().HasImage(o.ID()) {
		ds.Merge()
	}
}

func (ds *DataSet) referencesWorld(worldID string) bool {
	_, ok := ds.MergedMapping()[worldID]
	return ok
}

// AddPoleCorrespondence inserts a pole and an image object and maps one to
// the other in the explicit mapping.
func (ds *DataSet) AddPoleCorrespondence(p objects.Pole, img objects.ImageObject) {
	fresh := ds.isFreshPair(p.ID(), img.ID())
	ds.poles.add(p)
	ds.images.add(img)
	ds.record(p.ID(), img.ID(), fresh, func() {
		ds.polePoints = appendPoints(ds.polePoints, p, img)
	})
}

// AddRoadMarkCorrespondence inserts a road mark and an image object and maps
// one to the other in the explicit mapping.
func (ds *DataSet) AddRoadMarkCorrespondence(m objects.RoadMark, img objects.ImageObject) {
	fresh := ds.isFreshPair(m.ID(), img.ID())
	ds.roadMarks.add(m)
	ds.images.add(img)
	ds.record(m.ID(), img.ID(), fresh, func() {
		ds.roadMarkPoints = appendPoints(ds.roadMarkPoints, m, img)
	})
}

// isFreshPair reports whether a new pair can be derived incrementally: the
// merged mapping references neither id and neither id shadows an existing
// entity.
func (ds *DataSet) isFreshPair(worldID, imageID string) bool {
	merged := ds.MergedMapping()
	if _, mapped := merged[worldID]; mapped {
		return false
	}
	if merged.HasImage(imageID) {
		return false
	}
	_, pole := ds.poles.get(worldID)
	_, mark := ds.roadMarks.get(worldID)
	_, img := ds.images.get(imageID)
	return !pole && !mark && !img
}

func (ds *DataSet) record(worldID, imageID string, fresh bool, derive func()) {
	if ds.mapping == nil {
		ds.mapping = Mapping{}
	}
	ds.mapping[worldID] = imageID
	if fresh {
		derive()
		return
	}
	ds.Merge()
}

// SetMapping replaces the explicit mapping and rebuilds all points.
func (ds *DataSet) SetMapping(m Mapping) {
	ds.mapping = m.Clone()
	ds.Merge()
}

// SetMappingExtension replaces the mapping extension and rebuilds all points.
func (ds *DataSet) SetMappingExtension(m Mapping) {
	ds.extension = m.Clone()
	ds.Merge()
}

// Mapping returns a copy of the explicit mapping.
func (ds *DataSet) Mapping() Mapping { return ds.mapping.Clone() }

// MappingExtension returns a copy of the mapping extension.
func (ds *DataSet) MappingExtension() Mapping { return ds.extension.Clone() }

// MergedMapping returns the explicit mapping overlaid with the extension.
func (ds *DataSet) MergedMapping() Mapping {
	return MergeMappings(ds.mapping, ds.extension)
}

// Merge clears and rebuilds both parametric point collections from the
// merged mapping, in ascending world id order. Entries whose world or image
// id does not resolve are skipped.
func (ds *DataSet) Merge() {
	ds.polePoints = nil
	ds.roadMarkPoints = nil

	merged := ds.MergedMapping()
	for _, worldID := range merged.Keys() {
		img, ok := ds.images.get(merged[worldID])
		if !ok {
			continue
		}
		if p, ok := ds.poles.get(worldID); ok {
			ds.polePoints = appendPoints(ds.polePoints, p, img)
		}
		if m, ok := ds.roadMarks.get(worldID); ok {
			ds.roadMarkPoints = appendPoints(ds.roadMarkPoints, m, img)
		}
	}
}

func appendPoints(dst []objects.ParametricPoint, o objects.WorldObject, img objects.ImageObject) []objects.ParametricPoint {
	for _, px := range img.CenterLine() {
		dst = append(dst, objects.PointOn(o, img.ID(), px))
	}
	return dst
}

// PolePoints returns the derived points on poles.
func (ds *DataSet) PolePoints() []objects.ParametricPoint {
	return append([]objects.ParametricPoint(nil), ds.polePoints...)
}

// RoadMarkPoints returns the derived points on road marks.
func (ds *DataSet) RoadMarkPoints() []objects.ParametricPoint {
	return append([]objects.ParametricPoint(nil), ds.roadMarkPoints...)
}

// Clear drops all entities, both mappings and the derived points. The
// weight sequence is append-only and survives.
func (ds *DataSet) Clear() {
	ds.poles.clear()
	ds.roadMarks.clear()
	ds.images.clear()
	ds.mapping = Mapping{}
	ds.extension = Mapping{}
	ds.polePoints = nil
	ds.roadMarkPoints = nil
}

// Poles returns the stored poles in insertion order.
func (ds *DataSet) Poles() []objects.Pole { return ds.poles.all() }

// RoadMarks returns the stored road marks in insertion order.
func (ds *DataSet) RoadMarks() []objects.RoadMark { return ds.roadMarks.all() }

// ImageObjects returns the stored image detections in insertion order.
func (ds *DataSet) ImageObjects() []objects.ImageObject { return ds.images.all() }

func (ds *DataSet) Pole(id string) (objects.Pole, bool) { return ds.poles.get(id) }

func (ds *DataSet) RoadMark(id string) (objects.RoadMark, bool) { return ds.roadMarks.get(id) }

func (ds *DataSet) ImageObject(id string) (objects.ImageObject, bool) { return ds.images.get(id) }

// WorldObject resolves id against the poles first, then the road marks.
// isRoadMark tells which collection matched.
func (ds *DataSet) WorldObject(id string) (o objects.WorldObject, isRoadMark bool, ok bool) {
	if p, ok := ds.poles.get(id); ok {
		return p, false, true
	}
	if m, ok := ds.roadMarks.get(id); ok {
		return m, true, true
	}
	return nil, false, false
}

// AppendWeight adds a weight to the sequence and returns its index.
func (ds *DataSet) AppendWeight(initial float64) int {
	ds.weights = append(ds.weights, initial)
	return len(ds.weights) - 1
}

// Weight returns the weight at index i.
func (ds *DataSet) Weight(i int) float64 { return ds.weights[i] }

// SetWeight overwrites the weight at index i, typically with a solver result.
func (ds *DataSet) SetWeight(i int, w float64) { ds.weights[i] = w }

// Weights returns a copy of the weight sequence.
func (ds *DataSet) Weights() []float64 { return append([]float64(nil), ds.weights...) }

// EntryError is the contribution of one merged mapping entry to Evaluate.
type EntryError struct {
	WorldID      string
	ImageID      string
	IsRoadMark   bool
	Projected    r2.Point
	Expected     r2.Point
	BehindCamera bool
	Distance     float64
	Contribution float64
}

// Evaluate returns the total reprojection error of the merged mapping under
// the given camera. Each resolvable entry projects the world object's origin
// and adds its pixel distance to the image object's mid point; road-mark
// distances are multiplied by the size of the explicit mapping, and points
// behind the camera add camera.BehindCameraPenalty instead.
func (ds *DataSet) Evaluate(ext camera.Extrinsics, in camera.Intrinsics) float64 {
	total := 0.0
	for _, e := range ds.EvaluateDetailed(ext, in) {
		total += e.Contribution
	}
	return total
}

// EvaluateDetailed returns the per-entry breakdown behind Evaluate, in
// ascending world id order. Unresolved entries are omitted.
func (ds *DataSet) EvaluateDetailed(ext camera.Extrinsics, in camera.Intrinsics) []EntryError {
	merged := ds.MergedMapping()
	out := make([]EntryError, 0, len(merged))
	for _, worldID := range merged.Keys() {
		o, isRoadMark, ok := ds.WorldObject(worldID)
		if !ok {
			continue
		}
		img, ok := ds.images.get(merged[worldID])
		if !ok {
			continue
		}

		e := EntryError{
			WorldID:    worldID,
			ImageID:    img.ID(),
			IsRoadMark: isRoadMark,
			Expected:   img.Mid(),
		}
		e.Projected, e.BehindCamera = camera.Render(ext, in, o.Origin())
		if e.BehindCamera {
			e.Contribution = camera.BehindCameraPenalty
		} else {
			e.Distance = e.Projected.Sub(e.Expected).Norm()
			e.Contribution = e.Distance
			if isRoadMark {
				e.Contribution *= float64(len(ds.mapping))
			}
		}
		out = append(out, e)
	}
	return out
}
