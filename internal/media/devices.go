package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

var (
	opusCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	vp8Codec  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}

	// An Opus frame carrying 20ms of silence.
	opusSilence = []byte{0xf8, 0xff, 0xfe}
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 33 * time.Millisecond
)

// SyntheticDevice produces silence and blank frames. Used headless and in tests.
type SyntheticDevice struct{}

func (SyntheticDevice) Open(kind Kind) (Source, webrtc.RTPCodecCapability, error) {
	switch kind {
	case KindAudio:
		return &syntheticSource{payload: opusSilence, duration: audioFrame}, opusCodec, nil
	case KindVideo:
		return &syntheticSource{payload: make([]byte, 64), duration: videoFrame}, vp8Codec, nil
	default:
		return nil, webrtc.RTPCodecCapability{}, fmt.Errorf("unsupported kind %q", kind)
	}
}

type syntheticSource struct {
	payload  []byte
	duration time.Duration
	closed   bool
}

func (s *syntheticSource) ReadSample() (pionmedia.Sample, error) {
	if s.closed {
		return pionmedia.Sample{}, io.EOF
	}
	return pionmedia.Sample{Data: s.payload, Duration: s.duration}, nil
}

func (s *syntheticSource) Close() error {
	s.closed = true
	return nil
}

// FileDevice plays an Ogg/Opus file as the microphone and an IVF file as the camera.
type FileDevice struct {
	AudioPath string
	VideoPath string
}

func (d FileDevice) Open(kind Kind) (Source, webrtc.RTPCodecCapability, error) {
	switch kind {
	case KindAudio:
		return openOgg(d.AudioPath)
	case KindVideo:
		return openIVF(d.VideoPath)
	default:
		return nil, webrtc.RTPCodecCapability{}, fmt.Errorf("unsupported kind %q", kind)
	}
}

type oggSource struct {
	file        *os.File
	reader      *oggreader.OggReader
	lastGranule uint64
}

func openOgg(path string) (Source, webrtc.RTPCodecCapability, error) {
	if path == "" {
		return nil, webrtc.RTPCodecCapability{}, errors.New("no audio file configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, webrtc.RTPCodecCapability{}, err
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, webrtc.RTPCodecCapability{}, fmt.Errorf("ogg header: %w", err)
	}
	return &oggSource{file: f, reader: r}, opusCodec, nil
}

func (s *oggSource) ReadSample() (pionmedia.Sample, error) {
	page, header, err := s.reader.ParseNextPage()
	if err != nil {
		return pionmedia.Sample{}, err
	}
	samples := header.GranulePosition - s.lastGranule
	s.lastGranule = header.GranulePosition
	duration := time.Duration((float64(samples) / 48000) * float64(time.Second))
	return pionmedia.Sample{Data: page, Duration: duration}, nil
}

func (s *oggSource) Close() error { return s.file.Close() }

type ivfSource struct {
	file     *os.File
	reader   *ivfreader.IVFReader
	duration time.Duration
}

func openIVF(path string) (Source, webrtc.RTPCodecCapability, error) {
	if path == "" {
		return nil, webrtc.RTPCodecCapability{}, errors.New("no video file configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, webrtc.RTPCodecCapability{}, err
	}
	r, header, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, webrtc.RTPCodecCapability{}, fmt.Errorf("ivf header: %w", err)
	}

	var codec webrtc.RTPCodecCapability
	switch header.FourCC {
	case "VP80":
		codec = vp8Codec
	case "VP90":
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000}
	case "AV01":
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeAV1, ClockRate: 90000}
	default:
		_ = f.Close()
		return nil, webrtc.RTPCodecCapability{}, fmt.Errorf("unsupported ivf codec %q", header.FourCC)
	}

	frame := videoFrame
	if header.TimebaseDenominator > 0 {
		frame = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}
	return &ivfSource{file: f, reader: r, duration: frame}, codec, nil
}

func (s *ivfSource) ReadSample() (pionmedia.Sample, error) {
	frame, _, err := s.reader.ParseNextFrame()
	if err != nil {
		return pionmedia.Sample{}, err
	}
	return pionmedia.Sample{Data: frame, Duration: s.duration}, nil
}

func (s *ivfSource) Close() error { return s.file.Close() }
