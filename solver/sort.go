package solver

// quickSort sorts s in place. The middle element is the pivot and the
// partition is not stable, so equal elements keep a fixed but arbitrary
// order that depends only on the input.
func quickSort(s []int, less func(a, b int) bool) {
	if len(s) < 2 {
		return
	}

	mid := (len(s) - 1) >> 1
	s[0], s[mid] = s[mid], s[0]
	last := 0
	for i := 1; i < len(s); i++ {
		if less(s[i], s[0]) {
			last++
			s[last], s[i] = s[i], s[last]
		}
	}
	s[0], s[last] = s[last], s[0]

	quickSort(s[:last], less)
	quickSort(s[last+1:], less)
}
