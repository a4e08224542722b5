package engine

import (
	"fmt"
	"os"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"scribe/internal/services"
)

// WhisperFiles locates the exported Whisper model.
type WhisperFiles struct {
	Encoder string
	Decoder string
	Tokens  string
}

// SherpaOptions configures the native recognizer.
type SherpaOptions struct {
	Language      string
	Translate     bool
	NumThreads    int
	SampleRate    int
	WindowSeconds int
}

// SherpaDecoder decodes windows with a sherpa-onnx offline Whisper recognizer.
type SherpaDecoder struct {
	recognizer *sherpa.OfflineRecognizer
}

// NewSherpaDecoder creates the native recognizer for files.
func NewSherpaDecoder(files WhisperFiles, opts SherpaOptions) (*SherpaDecoder, error) {
	language := opts.Language
	if language == "auto" {
		language = ""
	}
	task := "transcribe"
	if opts.Translate {
		task = "translate"
	}
	cfg := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: opts.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Whisper: sherpa.OfflineWhisperModelConfig{
				Encoder:  files.Encoder,
				Decoder:  files.Decoder,
				Language: language,
				Task:     task,
			},
			Tokens:     files.Tokens,
			NumThreads: opts.NumThreads,
		},
	}
	recognizer := sherpa.NewOfflineRecognizer(&cfg)
	if recognizer == nil {
		return nil, services.Wrap(services.ErrResource, "engine", "create recognizer",
			fmt.Sprintf("could not initialise Whisper model from %s", files.Encoder), nil)
	}
	return &SherpaDecoder{recognizer: recognizer}, nil
}

// Decode runs one synchronous decode pass.
func (d *SherpaDecoder) Decode(samples []float32, sampleRate int) (string, error) {
	if d.recognizer == nil {
		return "", fmt.Errorf("recognizer closed")
	}
	if len(samples) == 0 {
		return "", nil
	}
	stream := sherpa.NewOfflineStream(d.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	d.recognizer.Decode(stream)

	result := stream.GetResult()
	if result == nil {
		return "", nil
	}
	return result.Text, nil
}

// Close frees the native recognizer.
func (d *SherpaDecoder) Close() {
	if d.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(d.recognizer)
		d.recognizer = nil
	}
}

// ReadSamples loads a mono PCM WAV with sherpa-onnx's reader.
func ReadSamples(path string) ([]float32, int, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, 0, err
	}
	wave := sherpa.ReadWave(path)
	if wave == nil {
		return nil, 0, fmt.Errorf("read wave %s: unsupported or corrupt file", path)
	}
	return wave.Samples, wave.SampleRate, nil
}

// NewSherpaEngine builds a WindowedEngine over a native Whisper recognizer.
func NewSherpaEngine(files WhisperFiles, opts SherpaOptions) (*WindowedEngine, error) {
	decoder, err := NewSherpaDecoder(files, opts)
	if err != nil {
		return nil, err
	}
	return NewWindowedEngine(decoder, ReadSamples, opts.WindowSeconds), nil
}
