package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// maxLoopbackBacklog bounds buffered system audio to 80ms.
const maxLoopbackBacklog = 4 * chunkSizeBytes

// Mix adds the s16le samples of b onto a with saturation. The result has
// the length of a; missing samples in b count as silence.
func Mix(a, b []byte) []byte {
	out := make([]byte, len(a))
	copy(out, a)
	n := min(len(a), len(b)) &^ 1
	for i := 0; i < n; i += 2 {
		sum := int32(int16(binary.LittleEndian.Uint16(a[i:]))) + int32(int16(binary.LittleEndian.Uint16(b[i:])))
		sum = max(math.MinInt16, min(math.MaxInt16, sum))
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(sum)))
	}
	return out
}

// Mixer paces output on the primary source and mixes in whatever loopback
// audio has arrived since the previous chunk.
type Mixer struct {
	primary  Source
	loopback Source
	out      chan []byte
	done     chan struct{}
	once     sync.Once
}

// NewMixer starts mixing loopback into primary.
func NewMixer(primary, loopback Source) *Mixer {
	m := &Mixer{
		primary:  primary,
		loopback: loopback,
		out:      make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

// Chunks returns the mixed stream. It closes when the primary source ends.
func (m *Mixer) Chunks() <-chan []byte {
	return m.out
}

// Stop stops both sources.
func (m *Mixer) Stop() error {
	m.once.Do(func() { close(m.done) })
	err := m.primary.Stop()
	if lerr := m.loopback.Stop(); err == nil {
		err = lerr
	}
	return err
}

func (m *Mixer) run() {
	defer close(m.out)

	var backlog []byte
	loop := m.loopback.Chunks()
	for {
		select {
		case chunk, ok := <-m.primary.Chunks():
			if !ok {
				return
			}
			take := min(len(chunk), len(backlog)) &^ 1
			mixed := Mix(chunk, backlog[:take])
			backlog = backlog[take:]
			select {
			case m.out <- mixed:
			case <-m.done:
				return
			}
		case chunk, ok := <-loop:
			if !ok {
				loop = nil
				continue
			}
			backlog = append(backlog, chunk...)
			if over := len(backlog) - maxLoopbackBacklog; over > 0 {
				backlog = backlog[(over+1)&^1:]
			}
		}
	}
}
