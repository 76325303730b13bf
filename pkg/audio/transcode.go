package audio

// Transcoder converts captured call frames into the sink's negotiated wire
// format: dual-channel capture is downmixed unless true-stereo delivery was
// requested, the result is resampled to the requested rate, and finally
// companded to G.711 when a non-linear encoding was negotiated.
//
// Create one per session; it is only ever used from the media thread and is
// not safe for concurrent use.
type Transcoder struct {
	target StreamFormat
}

// NewTranscoder creates a Transcoder producing audio in the given format.
func NewTranscoder(target StreamFormat) *Transcoder {
	return &Transcoder{target: target}
}

// Process converts one captured frame to the sink wire format. The input
// must be 16-bit little-endian linear PCM. The returned slice is freshly
// allocated unless the frame already matches the target format.
func (t *Transcoder) Process(frame Frame) []byte {
	pcm := frame.Data
	channels := frame.Channels
	if channels <= 0 {
		channels = 1
	}

	// Downmix dual-channel capture unless per-channel delivery was requested.
	if channels == 2 && t.target.Layout != LayoutStereo {
		pcm = downmixStereo16(pcm)
		channels = 1
	}

	if frame.SampleRate > 0 && frame.SampleRate != t.target.SampleRate {
		pcm = resampleLinear16(pcm, frame.SampleRate, t.target.SampleRate, channels)
	}

	switch t.target.Encoding {
	case EncodingPCMU:
		return PCMToMuLaw(pcm)
	case EncodingPCMA:
		return PCMToALaw(pcm)
	default:
		return pcm
	}
}

// downmixStereo16 averages interleaved L+R pairs into mono. Uses int32
// arithmetic to avoid overflow; the average of two int16 values always fits.
func downmixStereo16(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := int16((l + r) / 2)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// resampleLinear16 resamples interleaved 16-bit PCM from srcRate to dstRate
// using linear interpolation. channels is the interleave factor (1 or 2).
// Returns the input unchanged when no conversion is needed.
func resampleLinear16(pcm []byte, srcRate, dstRate, channels int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	stride := channels * 2
	srcFrames := len(pcm) / stride
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*stride)
	ratio := float64(srcRate) / float64(dstRate)

	sampleAt := func(frameIdx, ch int) int16 {
		off := frameIdx*stride + ch*2
		return int16(pcm[off]) | int16(pcm[off+1])<<8
	}

	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		for ch := 0; ch < channels; ch++ {
			s0 := sampleAt(idx, ch)
			s1 := s0
			if idx+1 < srcFrames {
				s1 = sampleAt(idx+1, ch)
			}
			v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			off := i*stride + ch*2
			out[off] = byte(v)
			out[off+1] = byte(v >> 8)
		}
	}
	return out
}
