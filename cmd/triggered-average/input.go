package main

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type input struct {
	f   *os.File
	dec *wav.Decoder
}

// openInput opens a PCM WAV file and positions the decoder at its sample data.
func openInput(path string) (*input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: seek to PCM data: %w", path, err)
	}
	switch dec.BitDepth {
	case 16, 24, 32:
	default:
		f.Close()
		return nil, fmt.Errorf("%s: unsupported bit depth %d", path, dec.BitDepth)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		f.Close()
		return nil, fmt.Errorf("%s: no channels or sample rate in header", path)
	}
	return &input{f: f, dec: dec}, nil
}

func (in *input) format() *audio.Format {
	return &audio.Format{NumChannels: int(in.dec.NumChans), SampleRate: int(in.dec.SampleRate)}
}

func (in *input) Close() error { return in.f.Close() }
