package montecarlo

// subSeed derives the seed for trajectory index i from the master seed via a
// splitmix64 step, so every trajectory owns an independent generator and the
// output is identical regardless of worker scheduling.
func subSeed(master int64, index int) int64 {
	z := uint64(master) + uint64(index+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z = z ^ (z >> 31)
	return int64(z)
}
