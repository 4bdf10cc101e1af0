package playback

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Device is a malgo-backed Player that renders scheduled sources through the
// default output device. Sources are strictly sequential on the shared
// clock; samples before a source's start time are filled with silence.
type Device struct {
	clock      Clock
	sampleRate int
	ctx        *malgo.AllocatedContext
	dev        *malgo.Device

	mu    sync.Mutex
	queue []*playEntry
}

type playEntry struct {
	src     *Source
	onEnded func()
	pos     int
}

// NewDevice opens the default output device at the given sample rate.
func NewDevice(sampleRate int, clock Clock) (*Device, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if clock == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	d := &Device{
		clock:      clock,
		sampleRate: sampleRate,
		ctx:        ctx,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			d.fill(out, frameCount)
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to open playback device: %w", err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	d.dev = dev
	return d, nil
}

// Play enqueues a source for rendering at its scheduled start time.
func (d *Device) Play(src *Source, onEnded func()) error {
	d.mu.Lock()
	d.queue = append(d.queue, &playEntry{src: src, onEnded: onEnded})
	d.mu.Unlock()
	return nil
}

// Stop removes a source before it finishes. Stopping a source that already
// drained returns an error, which callers swallow.
func (d *Device) Stop(src *Source) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, e := range d.queue {
		if e.src.ID == src.ID {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("source %d already finished", src.ID)
}

// fill is the device data callback: it renders due samples from the queue
// head and silence everywhere else.
func (d *Device) fill(out []byte, frameCount uint32) {
	now := d.clock.Now()
	sampleDur := time.Second / time.Duration(d.sampleRate)

	var ended []func()

	d.mu.Lock()
	for i := 0; i < int(frameCount); i++ {
		t := now + time.Duration(i)*sampleDur

		var sample float32
		for len(d.queue) > 0 {
			e := d.queue[0]
			if e.pos >= len(e.src.Samples) {
				d.queue = d.queue[1:]
				if e.onEnded != nil {
					ended = append(ended, e.onEnded)
				}
				continue
			}
			if t < e.src.Start {
				break
			}
			sample = e.src.Samples[e.pos]
			e.pos++
			break
		}

		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sample*32767)))
	}
	d.mu.Unlock()

	for _, fn := range ended {
		go fn()
	}
}

// Close stops the device and releases the audio backend.
func (d *Device) Close() {
	if d.dev != nil {
		d.dev.Uninit()
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
	}
}
