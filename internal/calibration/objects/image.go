package objects

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// ImageObject is one detected region in the camera image.
type ImageObject struct {
	id         string
	pixels     []r2.Point
	mid        r2.Point
	centerLine []r2.Point
}

// NewImageObject builds an image object from detected pixels. When
// imageHeight is greater than one the rows are flipped (y' = height-1-y)
// to move from the detector's top-left origin to the renderer's
// bottom-left one.
func NewImageObject(id string, pixels []r2.Point, imageHeight int) ImageObject {
	px := make([]r2.Point, len(pixels))
	for i, p := range pixels {
		if imageHeight > 1 {
			p.Y = float64(imageHeight-1) - p.Y
		}
		px[i] = p
	}
	return ImageObject{
		id:         id,
		pixels:     px,
		mid:        meanPoint(px),
		centerLine: centerLine(px),
	}
}

func (o ImageObject) ID() string { return o.id }

// Pixels returns a copy of the detected pixels.
func (o ImageObject) Pixels() []r2.Point {
	return append([]r2.Point(nil), o.pixels...)
}

// Mid returns the geometric centre of the detection.
func (o ImageObject) Mid() r2.Point { return o.mid }

// CenterLine returns one point per pixel row: the mean column of that row's
// pixels, rows ascending.
func (o ImageObject) CenterLine() []r2.Point {
	return append([]r2.Point(nil), o.centerLine...)
}

func meanPoint(px []r2.Point) r2.Point {
	if len(px) == 0 {
		return r2.Point{}
	}
	var sum r2.Point
	for _, p := range px {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(px)))
}

func centerLine(px []r2.Point) []r2.Point {
	type row struct {
		sumX  float64
		count int
	}
	rows := make(map[float64]*row)
	for _, p := range px {
		y := math.Round(p.Y)
		r, ok := rows[y]
		if !ok {
			r = &row{}
			rows[y] = r
		}
		r.sumX += p.X
		r.count++
	}

	ys := make([]float64, 0, len(rows))
	for y := range rows {
		ys = append(ys, y)
	}
	sort.Float64s(ys)

	line := make([]r2.Point, len(ys))
	for i, y := range ys {
		r := rows[y]
		line[i] = r2.Point{X: r.sumX / float64(r.count), Y: y}
	}
	return line
}
