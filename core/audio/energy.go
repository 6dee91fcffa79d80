package audio

// DefaultSilenceFloor is the per-sample energy below which audio is
// considered near-silence when trimming recording edges.
const DefaultSilenceFloor = 0.01

// TrimSilence removes near-silent leading and trailing audio, keeping a
// margin of samples on each trimmed edge so the first and last syllables
// are not clipped.
func TrimSilence(samples []float32, floor float32, margin int) []float32 {
	start := -1
	for i, s := range samples {
		if abs32(s) > floor {
			start = max(0, i-margin)
			break
		}
	}
	if start < 0 {
		return nil
	}

	end := len(samples)
	for i := len(samples) - 1; i >= 0; i-- {
		if abs32(samples[i]) > floor {
			end = min(len(samples), i+1+margin)
			break
		}
	}

	return samples[start:end]
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
