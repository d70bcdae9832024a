package scheduler

import "math/rand"

const maxDiversitySamples = 64

// Diversity is the mean fraction of projects whose timeslot differs between
// sampled pairs of candidates, in [0, 1].
func Diversity(pop []*Candidate, projects int, rng *rand.Rand) float64 {
	if len(pop) < 2 || projects == 0 {
		return 0
	}
	vectors := make([][]int, len(pop))
	for idx, c := range pop {
		vectors[idx] = c.slotVector(projects)
	}

	var total float64
	samples := 0
	pairs := len(pop) * (len(pop) - 1) / 2
	if pairs <= maxDiversitySamples || rng == nil {
		for i := 0; i < len(pop); i++ {
			for j := i + 1; j < len(pop); j++ {
				total += distance(vectors[i], vectors[j])
				samples++
			}
		}
	} else {
		for samples < maxDiversitySamples {
			i, j := rng.Intn(len(pop)), rng.Intn(len(pop))
			if i == j {
				continue
			}
			total += distance(vectors[i], vectors[j])
			samples++
		}
	}
	return total / float64(samples) / float64(projects)
}

func distance(a, b []int) float64 {
	diff := 0
	for idx := range a {
		if a[idx] != b[idx] {
			diff++
		}
	}
	return float64(diff)
}
