package quality

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeFloats(t *testing.T, dir, name string, values []float32) string {
	t.Helper()
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMeasure_Identical(t *testing.T) {
	dir := t.TempDir()
	out := writeFloats(t, dir, "out.bin", []float32{1, 2, 3})
	ref := writeFloats(t, dir, "ref.bin", []float32{1, 2, 3})

	ms, err := FloatComparer{}.Measure(out, ref)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	for _, m := range ms {
		if m.Value != 0 {
			t.Errorf("%s = %v, want 0", m.Key, m.Value)
		}
	}
}

func TestMeasure_KnownError(t *testing.T) {
	dir := t.TempDir()
	out := writeFloats(t, dir, "out.bin", []float32{1, 2, 3, 4})
	ref := writeFloats(t, dir, "ref.bin", []float32{1, 2, 3, 2})

	ms, err := FloatComparer{}.Measure(out, ref)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	got := make(map[string]float64)
	for _, m := range ms {
		got[m.Key] = m.Value
	}
	if got["mse"] != 1 {
		t.Errorf("mse = %v, want 1", got["mse"])
	}
	if got["rmse"] != 1 {
		t.Errorf("rmse = %v, want 1", got["rmse"])
	}
	if got["max_err"] != 2 {
		t.Errorf("max_err = %v, want 2", got["max_err"])
	}
}

func TestMeasure_SizeMismatch(t *testing.T) {
	dir := t.TempDir()
	out := writeFloats(t, dir, "out.bin", []float32{1, 2})
	ref := writeFloats(t, dir, "ref.bin", []float32{1})

	if _, err := (FloatComparer{}).Measure(out, ref); err == nil {
		t.Error("expected error for mismatched sizes")
	}
}

func TestMeasure_MissingFile(t *testing.T) {
	dir := t.TempDir()
	ref := writeFloats(t, dir, "ref.bin", []float32{1})

	if _, err := (FloatComparer{}).Measure(filepath.Join(dir, "nope.bin"), ref); err == nil {
		t.Error("expected error for missing output artifact")
	}
}
