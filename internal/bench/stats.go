package bench

// AverageExcludingWarmup averages times after dropping the first warmup
// entries. Early steps pay one-time costs (allocation recording, cache
// population) and would skew a short run's average. If warmup leaves nothing
// to average, the whole series is used instead.
func AverageExcludingWarmup(times []float64, warmup int) float64 {
	if len(times) == 0 {
		return 0
	}
	if warmup < 0 || warmup >= len(times) {
		warmup = 0
	}
	tail := times[warmup:]
	var sum float64
	for _, t := range tail {
		sum += t
	}
	return sum / float64(len(tail))
}
