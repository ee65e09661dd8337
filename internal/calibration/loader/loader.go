// Package loader reads survey, detection and mapping documents from YAML.
// Every loader treats an empty path as "nothing to load" and returns an
// empty result without error.
package loader

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/static-calibration/internal/calibration/dataset"
	"github.com/banshee-data/static-calibration/internal/calibration/objects"
)

// ErrParse marks a document that could not be decoded or has the wrong
// shape. The error message names the offending file.
var ErrParse = errors.New("couldn't parse")

// UnassignedWorldID is the mapping key for detections whose world object is
// unknown.
const UnassignedWorldID = "x"

// Pole filter applied to the objects document.
const (
	poleType = "pole"
	poleName = "permanentDelineator"
)

type roadsDocument struct {
	Roads []struct {
		LaneSections []struct {
			Lanes []struct {
				ExplicitRoadMarks []struct {
					ID          string      `yaml:"id"`
					Coordinates [][]float64 `yaml:"coordinates"`
				} `yaml:"explicitRoadMarks"`
			} `yaml:"lanes"`
		} `yaml:"laneSections"`
	} `yaml:"roads"`
}

type objectsDocument struct {
	Objects []struct {
		ID           string    `yaml:"id"`
		Type         string    `yaml:"type"`
		Name         string    `yaml:"name"`
		Height       float64   `yaml:"height"`
		ShiftedCoord []float64 `yaml:"shifted_coord"`
	} `yaml:"objects"`
}

type imageDocument struct {
	ImageSize []int `yaml:"image_size"`
	Regions   []struct {
		ID     string      `yaml:"id"`
		Pixels [][]float64 `yaml:"pixels"`
	} `yaml:"regions"`
}

func parseError(path string, err error) error {
	return fmt.Errorf("%w %s: %w", ErrParse, path, err)
}

func decodeFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return parseError(path, err)
	}
	return nil
}

func vector3(path, what string, v []float64) (r3.Vector, error) {
	if len(v) != 3 {
		return r3.Vector{}, parseError(path, fmt.Errorf("%s: want 3 coordinates, got %d", what, len(v)))
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

// LoadRoadMarks reads the explicit road marks of every lane and joins marks
// that touch end to start.
func LoadRoadMarks(path string) ([]objects.RoadMark, error) {
	if path == "" {
		return nil, nil
	}
	var doc roadsDocument
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}

	var marks []objects.RoadMark
	for _, road := range doc.Roads {
		for _, section := range road.LaneSections {
			for _, lane := range section.Lanes {
				for _, rm := range lane.ExplicitRoadMarks {
					if len(rm.Coordinates) < 2 {
						return nil, parseError(path, fmt.Errorf("road mark %q: want 2 coordinates, got %d", rm.ID, len(rm.Coordinates)))
					}
					start, err := vector3(path, "road mark "+rm.ID, rm.Coordinates[0])
					if err != nil {
						return nil, err
					}
					end, err := vector3(path, "road mark "+rm.ID, rm.Coordinates[1])
					if err != nil {
						return nil, err
					}
					marks = append(marks, objects.NewRoadMark(rm.ID, start, end))
				}
			}
		}
	}
	return objects.ChainRoadMarks(marks, objects.DefaultChainTolerance), nil
}

// LoadPoles reads the permanent delineator poles from an objects document.
// Other object kinds are ignored.
func LoadPoles(path string) ([]objects.Pole, error) {
	if path == "" {
		return nil, nil
	}
	var doc objectsDocument
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}

	var poles []objects.Pole
	for _, o := range doc.Objects {
		if o.Type != poleType || o.Name != poleName {
			continue
		}
		anchor, err := vector3(path, "object "+o.ID, o.ShiftedCoord)
		if err != nil {
			return nil, err
		}
		poles = append(poles, objects.NewPole(o.ID, anchor, o.Height))
	}
	return poles, nil
}

// LoadImageObjects reads the detected regions of one image. image_size is
// [height, width]; rows are flipped to a bottom-left origin when the height
// is known.
func LoadImageObjects(path string) ([]objects.ImageObject, error) {
	if path == "" {
		return nil, nil
	}
	var doc imageDocument
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	if len(doc.ImageSize) == 0 {
		return nil, parseError(path, errors.New("missing image_size"))
	}
	height := doc.ImageSize[0]

	images := make([]objects.ImageObject, 0, len(doc.Regions))
	for _, region := range doc.Regions {
		pixels := make([]r2.Point, 0, len(region.Pixels))
		for _, p := range region.Pixels {
			if len(p) != 2 {
				return nil, parseError(path, fmt.Errorf("region %q: want 2 pixel coordinates, got %d", region.ID, len(p)))
			}
			pixels = append(pixels, r2.Point{X: p[0], Y: p[1]})
		}
		images = append(images, objects.NewImageObject(region.ID, pixels, height))
	}
	return images, nil
}

// LoadMapping reads a flat world id to image id document. Keys may repeat;
// every UnassignedWorldID key is given its own synthetic negative id
// ("-1", "-2", ...) that no other key in the document uses, so those
// detections keep distinct entries.
func LoadMapping(path string) (dataset.Mapping, error) {
	mapping := dataset.Mapping{}
	if path == "" {
		return mapping, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// Decoding into a node keeps repeated keys, which a map would reject.
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, parseError(path, err)
	}
	if len(doc.Content) == 0 {
		return mapping, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, parseError(path, fmt.Errorf("line %d: mapping document must be a map", root.Line))
	}

	// Synthetic ids skip every key the document already uses.
	taken := make(map[string]bool, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode || value.Kind != yaml.ScalarNode {
			return nil, parseError(path, fmt.Errorf("line %d: mapping entries must be scalars", key.Line))
		}
		taken[key.Value] = true
	}

	next := 0
	for i := 0; i+1 < len(root.Content); i += 2 {
		worldID := root.Content[i].Value
		if worldID == UnassignedWorldID {
			for {
				next--
				worldID = strconv.Itoa(next)
				if !taken[worldID] {
					break
				}
			}
			taken[worldID] = true
		}
		mapping[worldID] = root.Content[i+1].Value
	}
	return mapping, nil
}

// Paths names the documents of one calibration scene. Empty paths are
// skipped.
type Paths struct {
	Objects   string
	RoadMarks string
	Image     string
	Mapping   string
}

// LoadDataSet loads every document in p into a new store.
func LoadDataSet(p Paths) (*dataset.DataSet, error) {
	poles, err := LoadPoles(p.Objects)
	if err != nil {
		return nil, err
	}
	marks, err := LoadRoadMarks(p.RoadMarks)
	if err != nil {
		return nil, err
	}
	images, err := LoadImageObjects(p.Image)
	if err != nil {
		return nil, err
	}
	mapping, err := LoadMapping(p.Mapping)
	if err != nil {
		return nil, err
	}
	return dataset.New(poles, marks, images, mapping), nil
}
