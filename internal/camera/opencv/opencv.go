// Package opencv implements camera sources on top of gocv video capture.
package opencv

import (
	"errors"
	"fmt"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/rbright/wwld/internal/camera"
)

// Source reads frames from one gocv video capture.
type Source struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// Open opens a device index ("0") or a device path ("/dev/video2").
func Open(device string) (camera.Source, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open video capture: %w", err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, errors.New("video capture did not open")
	}
	return &Source{capture: capture, frame: gocv.NewMat()}, nil
}

// ReadJPEG reads the current frame and encodes it at quality.
func (s *Source) ReadJPEG(quality int) ([]byte, int, int, error) {
	if ok := s.capture.Read(&s.frame); !ok {
		return nil, 0, 0, errors.New("read frame from device")
	}
	if s.frame.Empty() {
		return nil, 0, 0, errors.New("device returned an empty frame")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.frame, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close releases.
	jpeg := append([]byte(nil), buf.GetBytes()...)
	return jpeg, s.frame.Cols(), s.frame.Rows(), nil
}

// Close releases the frame buffer and the device.
func (s *Source) Close() error {
	_ = s.frame.Close()
	return s.capture.Close()
}

// Probe lists readable device indices in [0, maxIndex).
func Probe(maxIndex int) []camera.Device {
	devices := make([]camera.Device, 0, maxIndex)
	for i := 0; i < maxIndex; i++ {
		capture, err := gocv.VideoCaptureDevice(i)
		if err != nil {
			continue
		}
		if !capture.IsOpened() {
			_ = capture.Close()
			continue
		}

		frame := gocv.NewMat()
		if capture.Read(&frame) && !frame.Empty() {
			devices = append(devices, camera.Device{
				ID:     strconv.Itoa(i),
				Width:  frame.Cols(),
				Height: frame.Rows(),
			})
		}
		_ = frame.Close()
		_ = capture.Close()
	}
	return devices
}
