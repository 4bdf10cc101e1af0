package audio

// DataCallback receives raw 16-bit little-endian PCM frames from a capture
// device. It is invoked from the device's own thread and must not block.
type DataCallback func(data []byte, frameCount uint32)

// CaptureConfig describes the stream a capture device should deliver.
type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DeviceInfo identifies one capture device.
type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Context enumerates capture devices and opens capture streams. There is one
// malgo-backed implementation for real hardware and a fake one for tests.
type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice is one open microphone stream.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}
