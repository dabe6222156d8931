package utils

func IntRange(N int) (v []int) {
	v = make([]int, N)
	for i := range v {
		v[i] = i
	}
	return
}

// CeilDiv returns ceil(a/b) for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
