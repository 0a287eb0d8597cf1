package audioio

type sample interface {
	~int16 | ~float32
}

// resampleLinear converts between rates by linear interpolation, which is
// adequate for speech. Same-rate or invalid-rate input is returned as is.
func resampleLinear[S sample](in []S, fromRate, toRate int) []S {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(in) == 0 {
		return in
	}

	step := float64(fromRate) / float64(toRate)
	out := make([]S, int(float64(len(in))/step))
	last := len(in) - 1

	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		a, b := float64(in[j]), float64(in[j+1])
		out[i] = S(a + (pos-float64(j))*(b-a))
	}
	return out
}

// Resample converts PCM16 samples from one rate to another.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	return resampleLinear(samples, fromRate, toRate)
}

// ResampleFloat32 is Resample for float capture frames.
func ResampleFloat32(samples []float32, fromRate, toRate int) []float32 {
	return resampleLinear(samples, fromRate, toRate)
}

// framer accumulates arbitrarily sized device callbacks into fixed-size
// frames. It is not safe for concurrent use.
type framer struct {
	size int
	buf  []float32
}

func newFramer(size int) *framer {
	return &framer{size: size, buf: make([]float32, 0, size)}
}

// push appends samples and calls emit once per completed frame. Each emitted
// frame is a fresh slice owned by the receiver.
func (f *framer) push(samples []float32, emit func([]float32)) {
	for len(samples) > 0 {
		n := f.size - len(f.buf)
		if n > len(samples) {
			n = len(samples)
		}
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) == f.size {
			frame := make([]float32, f.size)
			copy(frame, f.buf)
			f.buf = f.buf[:0]
			emit(frame)
		}
	}
}
