package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeWAV packs float32 mono samples into a 16-bit PCM WAV container,
// the format the transcription service expects for uploads.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataLen := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, floatToPCM16(s))
	}

	return buf.Bytes()
}

// DecodeWAV unpacks a 16-bit PCM WAV payload into normalized float32 mono
// samples. Multi-channel audio is downmixed by averaging.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE payload")
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		pcm           []byte
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, 0, fmt.Errorf("malformed fmt chunk (%d bytes)", chunkLen)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, fmt.Errorf("unsupported wav format code %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+chunkLen]
		}

		// Chunks are word aligned.
		offset = body + chunkLen + chunkLen%2
	}

	if sampleRate == 0 || channels == 0 {
		return nil, 0, fmt.Errorf("missing fmt chunk")
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported sample width %d bits", bitsPerSample)
	}
	if pcm == nil {
		return nil, 0, fmt.Errorf("missing data chunk")
	}

	frameCount := len(pcm) / (2 * channels)
	samples := make([]float32, frameCount)
	for i := range frameCount {
		var sum float32
		for c := range channels {
			raw := int16(binary.LittleEndian.Uint16(pcm[(i*channels+c)*2:]))
			sum += float32(raw) / 32767.0
		}
		samples[i] = sum / float32(channels)
	}

	return samples, sampleRate, nil
}

func floatToPCM16(s float32) int16 {
	v := float64(s) * 32767.0
	v = math.Max(math.Min(v, 32767), -32768)
	return int16(v)
}
