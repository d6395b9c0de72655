package codec

import (
	"errors"
	"testing"
)

type stubEncoder struct {
	bitrate     int
	fec         bool
	lossPerc    int
	encodeErr   error
	lastPCM     []int16
	returnBytes int
}

func (s *stubEncoder) Encode(pcm []int16, data []byte) (int, error) {
	if s.encodeErr != nil {
		return 0, s.encodeErr
	}
	s.lastPCM = pcm
	n := s.returnBytes
	if n == 0 {
		n = 4
	}
	for i := 0; i < n && i < len(data); i++ {
		data[i] = byte(i)
	}
	return n, nil
}
func (s *stubEncoder) SetBitrate(bps int) error      { s.bitrate = bps; return nil }
func (s *stubEncoder) SetInBandFEC(v bool) error     { s.fec = v; return nil }
func (s *stubEncoder) SetPacketLossPerc(v int) error { s.lossPerc = v; return nil }

type stubDecoder struct {
	decodeData    []byte
	fecCalled     bool
	samplesPerChn int
	decodeErr     error
	fecErr        error
}

func (s *stubDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if s.decodeErr != nil {
		return 0, s.decodeErr
	}
	s.decodeData = data
	n := s.samplesPerChn
	if n == 0 {
		n = len(pcm) / 2
	}
	return n, nil
}
func (s *stubDecoder) DecodeFEC(data []byte, pcm []int16) error {
	if s.fecErr != nil {
		return s.fecErr
	}
	s.fecCalled = true
	s.decodeData = data
	return nil
}

func TestFrameSamples(t *testing.T) {
	if got := FrameSamples(1); got != 480 {
		t.Errorf("FrameSamples(1) = %d, want 480", got)
	}
	if got := FrameSamples(2); got != 960 {
		t.Errorf("FrameSamples(2) = %d, want 960", got)
	}
}

func TestClampBitrate(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, MinBitrate},
		{1000, MinBitrate},
		{DefaultBitrate, DefaultBitrate},
		{1_000_000, MaxBitrate},
	}
	for _, c := range cases {
		if got := ClampBitrate(c.in); got != c.want {
			t.Errorf("ClampBitrate(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEncoderSetBitrateClamps(t *testing.T) {
	stub := &stubEncoder{}
	e := &Encoder{enc: stub, channels: 2, bitrate: DefaultBitrate}
	if err := e.SetBitrate(1_000_000); err != nil {
		t.Fatalf("SetBitrate() error: %v", err)
	}
	if e.Bitrate() != MaxBitrate {
		t.Errorf("Bitrate() = %d, want %d", e.Bitrate(), MaxBitrate)
	}
	if stub.bitrate != MaxBitrate {
		t.Errorf("underlying encoder bitrate = %d, want %d", stub.bitrate, MaxBitrate)
	}
}

func TestEncoderRejectsWrongFrameSize(t *testing.T) {
	stub := &stubEncoder{}
	e := &Encoder{enc: stub, channels: 2, bitrate: DefaultBitrate}
	if _, err := e.Encode(make([]int16, 10)); err == nil {
		t.Fatal("Encode() accepted a mismatched frame size")
	}
}

func TestEncoderDropsOnError(t *testing.T) {
	stub := &stubEncoder{encodeErr: errors.New("boom")}
	e := &Encoder{enc: stub, channels: 1, bitrate: DefaultBitrate}
	if _, err := e.Encode(make([]int16, FrameSamples(1))); err == nil {
		t.Fatal("Encode() swallowed an underlying encoder error")
	}
}

func TestEncodeReturnsPayload(t *testing.T) {
	stub := &stubEncoder{returnBytes: 20}
	e := &Encoder{enc: stub, channels: 1, bitrate: DefaultBitrate}
	payload, err := e.Encode(make([]int16, FrameSamples(1)))
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if len(payload) != 20 {
		t.Fatalf("Encode() payload length = %d, want 20", len(payload))
	}
	if len(payload) > MaxPayloadSize {
		t.Fatalf("Encode() payload length %d exceeds MaxPayloadSize %d", len(payload), MaxPayloadSize)
	}
}

func TestDecodeEmptyPayloadTriggersPLC(t *testing.T) {
	stub := &stubDecoder{}
	d := &Decoder{dec: stub, channels: 1}
	if _, err := d.Decode(nil); err != nil {
		t.Fatalf("Decode(nil) error: %v", err)
	}
	if stub.decodeData != nil {
		t.Fatalf("Decode(nil) passed non-nil data to the underlying decoder: % x", stub.decodeData)
	}
}

func TestDecodeNormalPayload(t *testing.T) {
	stub := &stubDecoder{}
	d := &Decoder{dec: stub, channels: 2}
	payload := []byte{1, 2, 3}
	pcm, err := d.Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if string(stub.decodeData) != string(payload) {
		t.Fatalf("Decode() forwarded % x, want % x", stub.decodeData, payload)
	}
	if len(pcm) != FrameSamples(2) {
		t.Fatalf("Decode() pcm length = %d, want %d", len(pcm), FrameSamples(2))
	}
}

func TestDecodeFECDelegates(t *testing.T) {
	stub := &stubDecoder{}
	d := &Decoder{dec: stub, channels: 1}
	if _, err := d.DecodeFEC([]byte{9, 9}); err != nil {
		t.Fatalf("DecodeFEC() error: %v", err)
	}
	if !stub.fecCalled {
		t.Fatal("DecodeFEC() did not call the underlying decoder's FEC path")
	}
}
