package fileutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrNotWAV is returned when a file lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

// WAVInfo describes the PCM layout of a WAV file.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int64
}

// Duration is the playback length derived from the data chunk size.
func (w WAVInfo) Duration() time.Duration {
	frameBytes := int64(w.Channels * w.BitsPerSample / 8)
	if frameBytes == 0 || w.SampleRate == 0 {
		return 0
	}
	frames := w.DataBytes / frameBytes
	return time.Duration(frames) * time.Second / time.Duration(w.SampleRate)
}

// ProbeWAV reads the RIFF chunk headers of path without loading samples.
func ProbeWAV(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return WAVInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVInfo{}, ErrNotWAV
	}

	var (
		info    WAVInfo
		haveFmt bool
	)
	for {
		var header [8]byte
		if _, err := io.ReadFull(f, header[:]); err != nil {
			return WAVInfo{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
		}
		id := string(header[0:4])
		size := int64(binary.LittleEndian.Uint32(header[4:8]))
		switch id {
		case "fmt ":
			if size < 16 {
				return WAVInfo{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			var fmtChunk [16]byte
			if _, err := io.ReadFull(f, fmtChunk[:]); err != nil {
				return WAVInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
			info.Channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			haveFmt = true
			if _, err := f.Seek(size-16+size%2, io.SeekCurrent); err != nil {
				return WAVInfo{}, err
			}
		case "data":
			if !haveFmt {
				return WAVInfo{}, fmt.Errorf("%w: data before fmt chunk", ErrNotWAV)
			}
			info.DataBytes = size
			return info, nil
		default:
			if _, err := f.Seek(size+size%2, io.SeekCurrent); err != nil {
				return WAVInfo{}, err
			}
		}
	}
}
