package sensor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrPortClosed is returned by test ports after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort implements SerialPorter with configurable behaviour for
// testing. Reads block until data is added, an error is injected or the port
// is closed.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// readErr is returned by the next Read once the buffer is drained
	readErr error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read returns buffered data, blocking while the buffer is empty.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++
	for !t.Closed && t.ReadBuffer.Len() == 0 && t.readErr == nil {
		t.readCond.Wait()
	}
	if t.Closed {
		return 0, ErrPortClosed
	}
	if t.ReadBuffer.Len() > 0 {
		return t.ReadBuffer.Read(p)
	}
	err := t.readErr
	t.readErr = nil
	return 0, err
}

// Write captures p.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, ErrPortClosed
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed and wakes blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// FailRead makes the next empty-buffer Read return err.
func (t *TestableSerialPort) FailRead(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readErr = err
	t.readCond.Broadcast()
}

// IsClosed reports whether Close was called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// SimulatedPort replays scripted sensor messages, one line per interval,
// for running without hardware.
type SimulatedPort struct {
	r      *io.PipeReader
	cancel context.CancelFunc
}

// NewSimulatedPort starts emitting lines in a loop.
func NewSimulatedPort(lines []string, interval time.Duration) *SimulatedPort {
	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; len(lines) > 0; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if _, err := w.Write([]byte(lines[i%len(lines)] + "\n")); err != nil {
				return
			}
		}
	}()

	return &SimulatedPort{r: r, cancel: cancel}
}

func (p *SimulatedPort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *SimulatedPort) Write(b []byte) (int, error) { return len(b), nil }

// Close stops the generator and fails pending reads.
func (p *SimulatedPort) Close() error {
	p.cancel()
	return p.r.Close()
}

// SimulatedOpener returns a PortOpener that ignores the path and yields a
// fresh SimulatedPort each time.
func SimulatedOpener(lines []string, interval time.Duration) PortOpener {
	return func(string, PortOptions) (SerialPorter, error) {
		return NewSimulatedPort(lines, interval), nil
	}
}
