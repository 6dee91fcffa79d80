package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "float32"

	// DefaultBlockSize is the number of samples delivered per capture
	// callback invocation.
	DefaultBlockSize = 512
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// Duration converts a sample count to wall time.
func (e EncodingInfo) Duration(sampleCount int) time.Duration {
	return time.Duration(float64(sampleCount) / float64(e.SampleRate) * float64(time.Second))
}

// Samples converts a duration to a sample count.
func (e EncodingInfo) Samples(d time.Duration) int {
	return int(d.Seconds() * float64(e.SampleRate))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingLinear16:
		return 2
	case EncodingFloat32:
		return 4
	}
	return -1
}

const (
	EncodingLinear16 encodingFormat = "linear16"
	EncodingFloat32  encodingFormat = "float32"
)
