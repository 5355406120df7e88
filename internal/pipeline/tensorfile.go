package pipeline

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/visionassist/internal/detect"
)

// ReadTensor reads channels*elements little-endian float32 values.
func ReadTensor(r io.Reader, channels, elements int) (detect.Tensor, error) {
	if channels <= 4 || elements <= 0 {
		return detect.Tensor{}, fmt.Errorf("%w: %dx%d", detect.ErrTensorShape, channels, elements)
	}
	t := detect.Tensor{
		Data:     make([]float32, channels*elements),
		Channels: channels,
		Elements: elements,
	}
	if err := binary.Read(bufio.NewReader(r), binary.LittleEndian, t.Data); err != nil {
		return detect.Tensor{}, fmt.Errorf("read tensor: %w", err)
	}
	return t, nil
}

// WriteTensor writes t as little-endian float32 values.
func WriteTensor(w io.Writer, t detect.Tensor) error {
	if err := t.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, t.Data); err != nil {
		return fmt.Errorf("write tensor: %w", err)
	}
	return bw.Flush()
}

// LoadTensorFile reads a raw tensor dump from path.
func LoadTensorFile(path string, channels, elements int) (detect.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return detect.Tensor{}, err
	}
	defer f.Close()
	return ReadTensor(f, channels, elements)
}

// TensorInferencer returns the same recorded tensor for every frame. It
// replays model output captured on a device.
type TensorInferencer struct {
	Tensor detect.Tensor
}

// Infer returns a copy of the recorded tensor.
func (ti TensorInferencer) Infer(ctx context.Context, _ Frame) (detect.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return detect.Tensor{}, err
	}
	out := ti.Tensor
	out.Data = append([]float32(nil), ti.Tensor.Data...)
	return out, nil
}
