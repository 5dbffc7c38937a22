package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the size of a canonical RIFF/WAVE header with a single
// fmt chunk, as produced by EncodeWAV and by most recording front-ends.
const wavHeaderSize = 44

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM audio.
type wavHeader struct {
	RIFF          [4]byte
	FileSize      uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// EncodeWAV wraps raw little-endian PCM16 samples in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	blockAlign := channels * 2
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		FileSize:      uint32(wavHeaderSize - 8 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	_ = binary.Write(buf, binary.LittleEndian, h)
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV parses a RIFF/WAVE container and returns the PCM16 payload with
// its sample rate and channel count. Non-PCM encodings and bit depths other
// than 16 are rejected.
func DecodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if !HasRIFFHeader(data) || len(data) < 12 {
		return nil, 0, 0, fmt.Errorf("audio: not a RIFF/WAVE container")
	}
	if !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, 0, 0, fmt.Errorf("audio: RIFF container is not WAVE")
	}

	var (
		fmtSeen bool
		bits    int
	)

	// Walk the chunk list; recorders commonly insert LIST/INFO chunks
	// between fmt and data.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("audio: truncated fmt chunk")
			}
			audioFormat := int(binary.LittleEndian.Uint16(data[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if audioFormat != 1 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported WAV encoding %d (want PCM)", audioFormat)
			}
			if bits != 16 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported WAV bit depth %d (want 16)", bits)
			}
			fmtSeen = true
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		pos = body + size + size%2
	}

	if !fmtSeen {
		return nil, 0, 0, fmt.Errorf("audio: WAV missing fmt chunk")
	}
	if pcm == nil {
		return nil, 0, 0, fmt.Errorf("audio: WAV missing data chunk")
	}
	return pcm, sampleRate, channels, nil
}

// HasRIFFHeader reports whether data starts with a RIFF magic.
func HasRIFFHeader(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("RIFF"))
}

// TrimWAVHeader strips the canonical 44-byte header from a WAV payload so the
// raw samples can be injected into a PCM stream. Payloads without a RIFF
// header, or too short to carry one, are returned unchanged.
func TrimWAVHeader(data []byte) []byte {
	if HasRIFFHeader(data) && len(data) > wavHeaderSize {
		return data[wavHeaderSize:]
	}
	return data
}
