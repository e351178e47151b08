package tracking

import (
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// filterDecay is the per-sample exponential weight falloff: the previous
// sample weighs filterDecay times the current one.
const filterDecay = 0.65

// PoseFilter smooths a stream of camera extrinsics over a fixed-capacity ring
// of recent samples. Rotations are averaged as hemisphere-aligned quaternions
// with exponentially decaying weights favoring recent samples; translations
// are averaged with the same weights.
type PoseFilter struct {
	samples []poseSample
	head    int
	count   int
}

type poseSample struct {
	q quat.Number
	t r3.Vector
}

// NewPoseFilter creates a filter holding up to capacity samples.
func NewPoseFilter(capacity int) *PoseFilter {
	if capacity < 1 {
		capacity = 1
	}
	return &PoseFilter{samples: make([]poseSample, capacity)}
}

// Feed pushes a new extrinsics sample. It reports whether the filter holds at
// least one sample afterwards, i.e. whether Output is meaningful. Poses with
// non-finite entries are dropped.
func (f *PoseFilter) Feed(p PlanarPose) bool {
	if !p.IsValid() {
		return f.count > 0
	}
	rm, err := spatialmath.NewRotationMatrix(p.R.RawMatrix().Data)
	if err != nil {
		return f.count > 0
	}
	f.samples[f.head] = poseSample{q: rm.Quaternion(), t: p.T}
	f.head = (f.head + 1) % len(f.samples)
	if f.count < len(f.samples) {
		f.count++
	}
	return true
}

// Len returns the number of buffered samples.
func (f *PoseFilter) Len() int {
	return f.count
}

// Reset empties the buffer.
func (f *PoseFilter) Reset() {
	f.head = 0
	f.count = 0
}

// Output returns the smoothed extrinsics. With an empty buffer it returns the
// identity pose.
func (f *PoseFilter) Output() PlanarPose {
	if f.count == 0 {
		return PlanarPose{
			R: mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
			T: r3.Vector{},
		}
	}

	newest := (f.head - 1 + len(f.samples)) % len(f.samples)
	ref := f.samples[newest].q

	var accQ quat.Number
	var accT r3.Vector
	var total float64
	weight := 1.0
	for age := 0; age < f.count; age++ {
		i := (newest - age + len(f.samples)) % len(f.samples)
		s := f.samples[i]

		q := s.q
		// Quaternions double-cover rotations; align each sample to the most
		// recent one's hemisphere before averaging.
		if quatDot(q, ref) < 0 {
			q = quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
		}

		accQ.Real += weight * q.Real
		accQ.Imag += weight * q.Imag
		accQ.Jmag += weight * q.Jmag
		accQ.Kmag += weight * q.Kmag
		accT = accT.Add(s.t.Mul(weight))
		total += weight
		weight *= filterDecay
	}

	norm := quat.Abs(accQ)
	if norm < 1e-12 {
		accQ = ref
		norm = quat.Abs(ref)
	}
	avg := quat.Scale(1/norm, accQ)

	q := spatialmath.Quaternion(avg)
	rm := q.RotationMatrix()
	out := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, rm.At(i, j))
		}
	}
	return PlanarPose{R: out, T: accT.Mul(1 / total)}
}

func quatDot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}
