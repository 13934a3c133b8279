// Package quality measures how closely a runner's output artifact
// matches a reference artifact. It is an independent collaborator of
// the execution engine, selected only for quality-kind runners.
package quality

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/deixis/gridbench/internal/result"
)

// Measurer computes quality metrics from an output artifact and a
// reference artifact.
type Measurer interface {
	Measure(outputPath, referencePath string) ([]result.Measurement, error)
}

// FloatComparer compares two raw little-endian float32 arrays of equal
// length and reports mse, rmse and max_err.
type FloatComparer struct{}

// Measure implements Measurer.
func (FloatComparer) Measure(outputPath, referencePath string) ([]result.Measurement, error) {
	out, err := readFloats(outputPath)
	if err != nil {
		return nil, fmt.Errorf("reading output artifact: %w", err)
	}
	ref, err := readFloats(referencePath)
	if err != nil {
		return nil, fmt.Errorf("reading reference artifact: %w", err)
	}
	if len(out) != len(ref) {
		return nil, fmt.Errorf("artifact size mismatch: output has %d values, reference has %d", len(out), len(ref))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("artifacts are empty")
	}

	var sumSq, maxErr float64
	for i := range out {
		d := float64(out[i]) - float64(ref[i])
		sumSq += d * d
		if abs := math.Abs(d); abs > maxErr {
			maxErr = abs
		}
	}
	mse := sumSq / float64(len(out))

	return []result.Measurement{
		{Key: "mse", Value: mse},
		{Key: "rmse", Value: math.Sqrt(mse)},
		{Key: "max_err", Value: maxErr},
	}, nil
}

func readFloats(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: size %d is not a multiple of 4", path, len(data))
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		values[i] = math.Float32frombits(bits)
	}
	return values, nil
}
