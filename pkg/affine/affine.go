// Package affine fits a 6-parameter affine transform from matched control
// points by least squares, applies it to arbitrary image coordinates and
// derives accuracy and scale diagnostics.
package affine

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kass/go-georef/pkg/linalg"
	"github.com/kass/go-georef/pkg/models"
	"github.com/kass/go-georef/pkg/proj"
)

// MinControlPoints is the smallest control point set that determines the six
// transform parameters.
const MinControlPoints = 3

var (
	// ErrInsufficientControlPoints reports an estimation attempt with fewer
	// than MinControlPoints matched pairs.
	ErrInsufficientControlPoints = errors.New("affine: insufficient control points")
	// ErrSingularSystem reports normal equations that cannot be solved,
	// typically collinear or duplicated control points.
	ErrSingularSystem = errors.New("affine: singular system")
	// ErrNoTransform reports a nil or malformed transform where one is required.
	ErrNoTransform = errors.New("affine: no transform")
)

// Transform holds the six coefficients mapping image pixel space to Web
// Mercator meters:
//
//	mercX = A*x + B*y + C
//	mercY = D*x + E*y + F
//
// A Transform is created only by Estimate and is immutable; a new estimation
// run supersedes the previous value instead of mutating it.
type Transform struct {
	A, B, C, D, E, F float64
}

// AccuracyReport holds per-control-point residual distances in projected
// meters plus their mean, min and max. It is recomputed with every estimation
// run and is read-only.
type AccuracyReport struct {
	Errors []float64 `json:"errors"`
	Mean   float64   `json:"meanError"`
	Min    float64   `json:"minError"`
	Max    float64   `json:"maxError"`
}

// Estimate fits a Transform to the given control points by solving the
// least-squares normal equations (AᵗA)x = AᵗB, where each control point
// contributes one X-equation row and one Y-equation row. At least three
// points are required; collinear or degenerate sets are rejected.
func Estimate(points []models.ControlPoint) (*Transform, *AccuracyReport, error) {
	if len(points) < MinControlPoints {
		return nil, nil, fmt.Errorf("%w: got %d, need %d",
			ErrInsufficientControlPoints, len(points), MinControlPoints)
	}
	for _, cp := range points {
		if !finite(cp.ImageX, cp.ImageY, cp.Gps.Lat, cp.Gps.Lng) {
			return nil, nil, fmt.Errorf("%w: non-finite control point %q",
				proj.ErrInvalidGeometry, cp.Identifier)
		}
	}

	n := len(points)
	design := linalg.NewMatrix(2*n, 6)
	target := make([]float64, 2*n)

	for i, cp := range points {
		mercX := proj.LonToX(cp.Gps.Lng)
		mercY := proj.LatToY(cp.Gps.Lat)

		rx := design[2*i]
		rx[0], rx[1], rx[2] = cp.ImageX, cp.ImageY, 1
		target[2*i] = mercX

		ry := design[2*i+1]
		ry[3], ry[4], ry[5] = cp.ImageX, cp.ImageY, 1
		target[2*i+1] = mercY
	}

	at, err := linalg.Transpose(design)
	if err != nil {
		return nil, nil, err
	}
	ata, err := linalg.Multiply(at, design)
	if err != nil {
		return nil, nil, err
	}
	atb, err := linalg.MultiplyVector(at, target)
	if err != nil {
		return nil, nil, err
	}

	x, err := linalg.GaussJordan(ata, atb)
	if err != nil {
		if errors.Is(err, linalg.ErrSingular) {
			return nil, nil, fmt.Errorf("%w: %v", ErrSingularSystem, err)
		}
		return nil, nil, err
	}

	t := &Transform{A: x[0], B: x[1], C: x[2], D: x[3], E: x[4], F: x[5]}
	return t, t.accuracy(points), nil
}

// ApplyMercator applies the affine coefficients, producing Web Mercator meters.
func (t *Transform) ApplyMercator(imageX, imageY float64) (mercX, mercY float64) {
	mercX = t.A*imageX + t.B*imageY + t.C
	mercY = t.D*imageX + t.E*imageY + t.F
	return mercX, mercY
}

// Apply transforms image pixel coordinates to a WGS84 position.
func (t *Transform) Apply(imageX, imageY float64) (models.Location, error) {
	if t == nil {
		return models.Location{}, ErrNoTransform
	}
	mercX, mercY := t.ApplyMercator(imageX, imageY)
	if math.IsNaN(mercX) || math.IsNaN(mercY) || math.IsInf(mercX, 0) || math.IsInf(mercY, 0) {
		return models.Location{}, ErrNoTransform
	}
	return models.Location{
		Lat: proj.YToLat(mercY),
		Lng: proj.XToLon(mercX),
	}, nil
}

// Anisotropy returns the condition number of the transform's 2×2 linear part,
// the ratio of its largest to smallest singular value. 1 means isotropic
// scaling; larger values indicate shear or unequal axis scales.
func (t *Transform) Anisotropy() float64 {
	m := mat.NewDense(2, 2, []float64{t.A, t.B, t.D, t.E})
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDNone) {
		return math.NaN()
	}
	values := svd.Values(nil)
	if values[1] == 0 {
		return math.Inf(1)
	}
	return values[0] / values[1]
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// accuracy computes the residual report for the fitted transform: for each
// control point, the Euclidean distance in projected meters between the
// transformed image coordinates and the actual projected GPS position.
func (t *Transform) accuracy(points []models.ControlPoint) *AccuracyReport {
	report := &AccuracyReport{
		Errors: make([]float64, 0, len(points)),
		Min:    math.Inf(1),
	}

	sum := 0.0
	for _, cp := range points {
		fitX, fitY := t.ApplyMercator(cp.ImageX, cp.ImageY)
		dx := fitX - proj.LonToX(cp.Gps.Lng)
		dy := fitY - proj.LatToY(cp.Gps.Lat)
		residual := math.Hypot(dx, dy)

		report.Errors = append(report.Errors, residual)
		sum += residual
		if residual < report.Min {
			report.Min = residual
		}
		if residual > report.Max {
			report.Max = residual
		}
	}
	report.Mean = sum / float64(len(points))
	return report
}
