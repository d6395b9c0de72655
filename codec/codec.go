// Package codec implements the Codec Adapter: Opus encoder/decoder
// factories configured for low-latency voice, with packet-loss concealment
// and FEC-aware decode for the receive pipeline.
package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// SampleRate is the fixed Opus sample rate used throughout this module.
const SampleRate = 48000

// FrameDurationMs is the fixed frame duration every encode/decode call
// operates on.
const FrameDurationMs = 10

// Bitrate bounds and default, in bits per second.
const (
	MinBitrate     = 16000
	MaxBitrate     = 256000
	DefaultBitrate = 96000
)

// MaxPayloadSize is the largest Opus payload Encode may return: the 1500
// byte datagram cap minus the 19 byte audio header.
const MaxPayloadSize = 1500 - 19

// packetLossPercHint is the encoder's assumed loss rate, used to tune
// in-band FEC redundancy.
const packetLossPercHint = 5

// FrameSamples returns the number of interleaved int16 samples a single
// 10 ms frame holds for the given channel count (480 for mono, 960 for
// stereo at 48 kHz).
func FrameSamples(channels int) int {
	return SampleRate / 1000 * FrameDurationMs * channels
}

// ClampBitrate clamps bps to [MinBitrate, MaxBitrate].
func ClampBitrate(bps int) int {
	if bps < MinBitrate {
		return MinBitrate
	}
	if bps > MaxBitrate {
		return MaxBitrate
	}
	return bps
}

// opusEncoder is the subset of *opus.Encoder this package depends on; a
// test seam so callers can substitute a fake encoder.
type opusEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
	SetBitrate(bps int) error
	SetInBandFEC(bool) error
	SetPacketLossPerc(int) error
}

// opusDecoder is the subset of *opus.Decoder this package depends on.
type opusDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
	DecodeFEC(data []byte, pcm []int16) error
}

// Encoder wraps an Opus encoder configured per spec §4.4: low-delay
// application profile, in-band FEC, packet-loss hint, clamped bitrate. It
// does not switch the encoder to constant bitrate; the library's default
// rate control stays in effect.
type Encoder struct {
	enc      opusEncoder
	channels int
	bitrate  int
}

// NewEncoder creates an Opus encoder for channels (1 or 2) at bitrateBps
// (clamped to [MinBitrate, MaxBitrate]; 0 selects DefaultBitrate).
func NewEncoder(channels int, bitrateBps int) (*Encoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("codec: unsupported channel count %d", channels)
	}
	if bitrateBps == 0 {
		bitrateBps = DefaultBitrate
	}
	bitrateBps = ClampBitrate(bitrateBps)

	enc, err := opus.NewEncoder(SampleRate, channels, opus.AppRestrictedLowdelay)
	if err != nil {
		return nil, fmt.Errorf("codec: new encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrateBps); err != nil {
		return nil, fmt.Errorf("codec: set bitrate: %w", err)
	}
	if err := enc.SetInBandFEC(true); err != nil {
		return nil, fmt.Errorf("codec: enable in-band FEC: %w", err)
	}
	if err := enc.SetPacketLossPerc(packetLossPercHint); err != nil {
		return nil, fmt.Errorf("codec: set packet loss hint: %w", err)
	}

	return &Encoder{enc: enc, channels: channels, bitrate: bitrateBps}, nil
}

// Bitrate returns the encoder's current target bitrate in bits per second.
func (e *Encoder) Bitrate() int { return e.bitrate }

// SetBitrate changes the encoder's target bitrate, clamped to
// [MinBitrate, MaxBitrate].
func (e *Encoder) SetBitrate(bps int) error {
	bps = ClampBitrate(bps)
	if err := e.enc.SetBitrate(bps); err != nil {
		return fmt.Errorf("codec: set bitrate: %w", err)
	}
	e.bitrate = bps
	return nil
}

// Encode compresses one 10ms frame of interleaved PCM samples
// (FrameSamples(channels) of them) into an Opus payload. On encoder error
// the caller is expected to drop the frame; Encode returns the error rather
// than panicking so that decision stays with the caller.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	want := FrameSamples(e.channels)
	if len(pcm) != want {
		return nil, fmt.Errorf("codec: encode: got %d samples, want %d", len(pcm), want)
	}
	buf := make([]byte, MaxPayloadSize)
	n, err := e.enc.Encode(pcm, buf)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return buf[:n], nil
}

// Decoder wraps an Opus decoder configured for the same sample rate and
// channel count as its paired Encoder.
type Decoder struct {
	dec      opusDecoder
	channels int
}

// NewDecoder creates an Opus decoder for channels (1 or 2).
func NewDecoder(channels int) (*Decoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("codec: unsupported channel count %d", channels)
	}
	dec, err := opus.NewDecoder(SampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("codec: new decoder: %w", err)
	}
	return &Decoder{dec: dec, channels: channels}, nil
}

// Decode decompresses payload into one 10ms frame of interleaved PCM
// samples. An empty payload requests packet-loss-concealment synthesis
// instead of decoding real data.
func (d *Decoder) Decode(payload []byte) ([]int16, error) {
	pcm := make([]int16, FrameSamples(d.channels))
	var data []byte
	if len(payload) > 0 {
		data = payload
	}
	n, err := d.dec.Decode(data, pcm)
	if err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	return pcm[:n*d.channels], nil
}

// DecodeFEC recovers the frame preceding payload using payload's embedded
// in-band FEC data. Used on the first frame after a detected loss, when the
// next-arriving packet carries redundant data for the missing one.
func (d *Decoder) DecodeFEC(payload []byte) ([]int16, error) {
	pcm := make([]int16, FrameSamples(d.channels))
	if err := d.dec.DecodeFEC(payload, pcm); err != nil {
		return nil, fmt.Errorf("codec: decode FEC: %w", err)
	}
	return pcm, nil
}
