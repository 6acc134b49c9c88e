package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	zarr "github.com/TuSKan/go-zarr"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	url := "file:///" + filepath.ToSlash(t.TempDir())

	f, err := zarr.Create(ctx, url, zarr.ReturnErrors())
	require.NoError(t, err)
	g, err := f.CreateGroup(ctx, "fields")
	require.NoError(t, err)
	require.NoError(t, g.Close())
	require.NoError(t, zarr.WriteDataset(ctx, f, "fields/rho", []int{3, 2}, []float64{1, 2, 3, 4, 5, 6}))
	require.NoError(t, zarr.WriteAttribute(ctx, f, "fields/rho", "units", "kg/m^3"))
	require.NoError(t, zarr.WriteAttribute(ctx, f, "", "step", 12))
	require.NoError(t, f.Close())

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"--attrs", url}, &out))
	require.Equal(t, `/ (group)
  @step = 12
  /fields (group)
    /fields/rho (array) dtype=<f8 shape=[3 2] chunks=[3 2] compressor=zstd
      @units = "kg/m^3"
`, out.String())

	out.Reset()
	require.NoError(t, run(ctx, []string{"-p", "fields/rho", url}, &out))
	require.Contains(t, out.String(), "/fields/rho (array)")
	require.NotContains(t, out.String(), "(group)")
}

func TestRun_Config(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	url := "file:///" + filepath.ToSlash(filepath.Join(dir, "store"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "store"), 0o755))

	f, err := zarr.Create(ctx, url, zarr.ReturnErrors())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfgPath := filepath.Join(dir, "zarr.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("chunk_size: 0\n"), 0o644))
	require.Error(t, run(ctx, []string{"--config", cfgPath, url}, &bytes.Buffer{}))
}

func TestRun_Usage(t *testing.T) {
	require.Error(t, run(context.Background(), nil, &bytes.Buffer{}))
	require.Error(t, run(context.Background(), []string{"--bogus", "mem://"}, &bytes.Buffer{}))
}
