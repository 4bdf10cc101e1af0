package audio

import (
	"fmt"
	"sync"
)

// DefaultBlockSize is the number of samples per emitted chunk (128ms at
// 16 kHz).
const DefaultBlockSize = 2048

// ChunkFunc receives each completed fixed-size chunk from a Pipeline.
type ChunkFunc func(Chunk)

// Pipeline re-blocks irregular capture-device callbacks into fixed-size
// sample chunks with precomputed loudness. Device frames arrive as 16-bit
// little-endian PCM in whatever block sizes the hardware delivers; the
// pipeline accumulates them and emits one Chunk per completed block.
type Pipeline struct {
	blockSize int
	emit      ChunkFunc

	mu      sync.Mutex
	pending []float32
	device  CaptureDevice
	started bool
}

// NewPipeline creates a capture pipeline emitting blockSize-sample chunks
// through emit. A non-positive blockSize falls back to DefaultBlockSize.
func NewPipeline(blockSize int, emit ChunkFunc) (*Pipeline, error) {
	if emit == nil {
		return nil, fmt.Errorf("chunk callback cannot be nil")
	}

	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	return &Pipeline{
		blockSize: blockSize,
		emit:      emit,
		pending:   make([]float32, 0, blockSize),
	}, nil
}

// Start attaches the pipeline to a capture device and begins delivering
// chunks. Starting an already-started pipeline is an error; the caller must
// treat a start failure as failed-to-open for the whole session.
func (p *Pipeline) Start(device CaptureDevice) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("capture pipeline already started")
	}

	device.SetCallback(p.handleFrames)
	if err := device.Start(); err != nil {
		device.ClearCallback()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	p.device = device
	p.started = true
	return nil
}

// Stop detaches from the device and discards any partial block. Safe to call
// on a pipeline that never started.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.device.ClearCallback()
	p.device.Stop()
	p.device = nil
	p.pending = p.pending[:0]
	p.started = false
}

// handleFrames is the device callback: it converts raw PCM16 bytes to
// normalized samples and emits every completed block.
func (p *Pipeline) handleFrames(data []byte, _ uint32) {
	samples := BytesToSamples(data)

	p.mu.Lock()
	p.pending = append(p.pending, samples...)

	var ready [][]float32
	for len(p.pending) >= p.blockSize {
		block := make([]float32, p.blockSize)
		copy(block, p.pending[:p.blockSize])
		p.pending = p.pending[:copy(p.pending, p.pending[p.blockSize:])]
		ready = append(ready, block)
	}
	emit := p.emit
	p.mu.Unlock()

	for _, block := range ready {
		emit(Chunk{Samples: block, RMS: RMS(block)})
	}
}
