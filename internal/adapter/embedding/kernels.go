package embedding

// project computes out = m·x for a row-major matrix with len(x) columns.
type projectFunc func(m []float32, x []float32, out []float32)

func kernelFor(b Backend) projectFunc {
	if b == BackendAccelerated {
		return projectUnrolled
	}
	return projectGeneric
}

func projectGeneric(m, x, out []float32) {
	cols := len(x)
	for i := range out {
		row := m[i*cols : (i+1)*cols]
		var sum float32
		for j, v := range x {
			sum += row[j] * v
		}
		out[i] = sum
	}
}

// projectUnrolled keeps four independent accumulators so the compiler can
// schedule the multiplies on wide units.
func projectUnrolled(m, x, out []float32) {
	cols := len(x)
	for i := range out {
		row := m[i*cols : (i+1)*cols]
		var s0, s1, s2, s3 float32
		j := 0
		for ; j+4 <= cols; j += 4 {
			s0 += row[j] * x[j]
			s1 += row[j+1] * x[j+1]
			s2 += row[j+2] * x[j+2]
			s3 += row[j+3] * x[j+3]
		}
		for ; j < cols; j++ {
			s0 += row[j] * x[j]
		}
		out[i] = (s0 + s1) + (s2 + s3)
	}
}
