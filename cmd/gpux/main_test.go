package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/gpu-examples/internal/compute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = "../../fixtures/tests/config/cli_config.yaml"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"gpux", "--config", testConfig}, args...))
	return out.String(), err
}

func TestPlatforms(t *testing.T) {
	out, err := run(t, "platforms")
	require.NoError(t, err)
	assert.Contains(t, out, "Platform: Emulated")
	assert.Contains(t, out, "  Device: CLI Test GPU")
	assert.Contains(t, out, "  Compute units: 4")
	assert.Contains(t, out, "Platform: Host")
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "--verbosity", "warn", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "verbosity: warn")
	assert.Contains(t, out, "name: CLI Test GPU")
	assert.Contains(t, out, "size: 24")
}

func TestWorkloads(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "check",
			args: []string{"check"},
			want: []string{"Device: CLI Test GPU", "GPU is available!"},
		},
		{
			name: "copy",
			args: []string{"copy", "-size", "512"},
			want: []string{"Buffer has been sent to the GPU.", "done. The buffer has been on the GPU."},
		},
		{
			name: "vectoradd",
			args: []string{"vectoradd", "-size", "2000"},
			want: []string{"Selected GPU: CLI Test GPU", "Result correctness: PASSED", "2 + 4 = 6"},
		},
		{
			name: "matmul tiled ragged",
			args: []string{"matmul", "-size", "30", "-tile", "8", "-runs", "2"},
			want: []string{"Matrix size: 30 x 30", "Tile size: 8", "Result correctness: PASSED", "Idempotent: true"},
		},
		{
			name: "matmul simple",
			args: []string{"matmul", "-size=20", "-tile=4", "-variant=simple", "-reference=gonum"},
			want: []string{"Matrix size: 20 x 20", "Result correctness: PASSED (gonum reference)"},
		},
		{
			name: "matmul private",
			args: []string{"matmul", "-size=16", "-tile=4", "-variant=private", "-reference=naive"},
			want: []string{"Kernel file: matrix_private.cl (private)", "Grid: global=16x16 local=4x4", "Result correctness: PASSED"},
		},
		{
			name: "matmul formula",
			args: []string{"matmul", "-size", "4", "-tile", "2", "-fill", "formula"},
			want: []string{"C[0][0] = 6"},
		},
		{
			name: "histogram",
			args: []string{"histogram", "-size", "5000", "-bins", "16"},
			want: []string{"Input size: 5000", "Histogram bins: 16", "Result correctness: PASSED"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"matmul", "-size", "abc"}, "Invalid -size value"},
		{[]string{"matmul", "-size=-3"}, "Invalid -size value"},
		{[]string{"matmul", "-tile=0"}, "Invalid -tile value"},
		{[]string{"histogram", "-bins=0"}, "Invalid -bins value"},
		{[]string{"matmul", "-bogus"}, "Unknown option: -bogus"},
		{[]string{"matmul", "-size=10", "-tile=4", "-variant=private"}, "problem size must be divisible by the tile size: N=10, tile=4"},
		{[]string{"vectoradd", "-size", "1", "-frobnicate=2"}, "Unknown option: -frobnicate"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	_, err := run(t, "matmul", "-size", "64", "-tile", "32")
	assert.ErrorIs(t, err, compute.ErrInvalidDispatchShape)

	_, err = run(t, "matmul", "-kernel", filepath.Join(t.TempDir(), "missing.cl"))
	assert.ErrorContains(t, err, "failed to open kernel file")

	_, err = run(t, "matmul", "-size", "0")
	assert.Error(t, err)

	var out bytes.Buffer
	err = newApp(&out).Run([]string{"gpux", "--config", "../../fixtures/tests/config/bad_policy.yaml", "check"})
	assert.Error(t, err)
}

func TestMetricsTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpux.prom")
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"gpux", "--config", testConfig, "--metrics-textfile", path, "matmul", "-size", "8", "-tile", "4"})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gpux_kernel_dispatches_total")
	assert.Contains(t, string(data), "gpux_matmul_gflops")
}
