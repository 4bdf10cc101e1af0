package audio

import (
	"fmt"
	"sync"
)

// FakeContext is an in-process Context for tests and for running without
// audio hardware. Captures it opens deliver only the frames fed to them.
type FakeContext struct {
	mu       sync.Mutex
	captures []*FakeCapture
	failOpen bool
}

// NewFakeContext creates a fake audio backend.
func NewFakeContext() *FakeContext {
	return &FakeContext{}
}

// FailNextOpen makes subsequent NewCapture calls fail, simulating a missing
// or permission-denied microphone.
func (f *FakeContext) FailNextOpen(fail bool) {
	f.mu.Lock()
	f.failOpen = fail
	f.mu.Unlock()
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOpen {
		return nil, fmt.Errorf("no capture device available")
	}

	capture := &FakeCapture{}
	f.captures = append(f.captures, capture)
	return capture, nil
}

func (f *FakeContext) Close() {}

// Captures returns every capture device opened so far, in open order.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

// FakeCapture is a capture device fed manually through Feed.
type FakeCapture struct {
	mu        sync.Mutex
	cb        DataCallback
	started   bool
	failStart bool
}

// FailStart makes Start return an error, simulating a device that opens but
// cannot stream.
func (c *FakeCapture) FailStart() {
	c.mu.Lock()
	c.failStart = true
	c.mu.Unlock()
}

func (c *FakeCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failStart {
		return fmt.Errorf("device start failed")
	}
	c.started = true
	return nil
}

func (c *FakeCapture) Stop() {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
}

func (c *FakeCapture) Close() {}

func (c *FakeCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FakeCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

// Started reports whether the device is currently streaming.
func (c *FakeCapture) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Feed delivers raw PCM16 bytes to the registered callback as if the
// hardware produced them.
func (c *FakeCapture) Feed(data []byte) {
	c.mu.Lock()
	cb := c.cb
	started := c.started
	c.mu.Unlock()

	if cb != nil && started {
		cb(data, uint32(len(data)/2))
	}
}

// FeedSamples converts normalized samples to PCM16 and delivers them.
func (c *FakeCapture) FeedSamples(samples []float32) {
	c.Feed(pcm16Bytes(samples))
}

func pcm16Bytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		buf[i*2] = byte(uint16(v) & 0xFF)
		buf[i*2+1] = byte(uint16(v) >> 8)
	}
	return buf
}
