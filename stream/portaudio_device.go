package stream

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevices implements DeviceSelector over a blocking PortAudio
// stream, the same style the teacher's AudioEngine used (Read/Write loops
// on a dedicated goroutine rather than PortAudio's cgo callback mode).
// Resolving a device name to a *portaudio.DeviceInfo is the minimal glue
// needed to open a stream — full device enumeration for a picker UI is an
// external concern per spec §1 and is not exposed here.
type PortAudioDevices struct{}

func (PortAudioDevices) findDevice(name string, forInput bool) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("stream: list audio devices: %w", err)
	}
	if name == "" {
		if forInput {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	for _, d := range devices {
		if d.Name != name {
			continue
		}
		if forInput && d.MaxInputChannels > 0 {
			return d, nil
		}
		if !forInput && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("stream: no such audio device %q", name)
}

type paCaptureStream struct {
	stream   *portaudio.Stream
	buf      []int16
	channels int
}

func (PortAudioDevices) OpenCapture(name string, channels, sampleRate int) (CaptureStream, error) {
	var pd PortAudioDevices
	dev, err := pd.findDevice(name, true)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, codecFrameSamples(sampleRate, channels))
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: len(buf) / channels,
	}
	s, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("stream: open capture stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("stream: start capture stream: %w", err)
	}
	return &paCaptureStream{stream: s, buf: buf, channels: channels}, nil
}

func (c *paCaptureStream) Read(frame []int16) error {
	if err := c.stream.Read(); err != nil {
		return fmt.Errorf("stream: capture read: %w", err)
	}
	copy(frame, c.buf)
	return nil
}

func (c *paCaptureStream) Close() error {
	return c.stream.Close()
}

type paPlaybackStream struct {
	stream   *portaudio.Stream
	buf      []int16
	channels int
}

func (PortAudioDevices) OpenPlayback(name string, channels, sampleRate int) (PlaybackStream, error) {
	var pd PortAudioDevices
	dev, err := pd.findDevice(name, false)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, codecFrameSamples(sampleRate, channels))
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: len(buf) / channels,
	}
	s, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("stream: open playback stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("stream: start playback stream: %w", err)
	}
	return &paPlaybackStream{stream: s, buf: buf, channels: channels}, nil
}

func (p *paPlaybackStream) Write(frame []int16) error {
	copy(p.buf, frame)
	if err := p.stream.Write(); err != nil {
		return fmt.Errorf("stream: playback write: %w", err)
	}
	return nil
}

func (p *paPlaybackStream) Close() error {
	return p.stream.Close()
}

func codecFrameSamples(sampleRate, channels int) int {
	return sampleRate / 1000 * 10 * channels
}
