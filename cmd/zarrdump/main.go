// zarrdump prints the groups, arrays and attributes of a Zarr hierarchy.
//
// Usage:
//
//	zarrdump [flags] <bucket-url>
//
// The bucket URL is any gocloud.dev/blob URL, for example
// file:///data/run.zarr or s3://bucket/run.zarr.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/go-logr/stdr"
	"github.com/spf13/pflag"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	zarr "github.com/TuSKan/go-zarr"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var (
		path       string
		configPath string
		attrs      bool
		verbosity  int
	)
	flagSet := pflag.NewFlagSet("zarrdump", pflag.ContinueOnError)
	flagSet.StringVarP(&path, "path", "p", "", "group or array to start from")
	flagSet.StringVar(&configPath, "config", "", "YAML config file")
	flagSet.BoolVarP(&attrs, "attrs", "a", false, "print attributes")
	flagSet.IntVarP(&verbosity, "verbose", "v", 0, "log verbosity")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zarrdump [flags] <bucket-url>\n\n%s", flagSet.FlagUsages())
	}
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return fmt.Errorf("expected one bucket URL, got %d arguments", flagSet.NArg())
	}

	stdr.SetVerbosity(verbosity)
	opts := []zarr.FileOption{
		zarr.ReturnErrors(),
		zarr.WithLogger(stdr.New(log.New(os.Stderr, "zarrdump: ", log.LstdFlags))),
	}
	if configPath != "" {
		cfg, err := zarr.LoadConfig(configPath)
		if err != nil {
			return err
		}
		opts = append(opts, zarr.WithConfig(cfg))
	}

	f, err := zarr.Append(ctx, flagSet.Arg(0), opts...)
	if err != nil {
		return err
	}
	defer f.Close()
	return dump(ctx, f, path, attrs, out)
}

func dump(ctx context.Context, f *zarr.File, root string, attrs bool, out io.Writer) error {
	return f.Walk(ctx, root, func(path string, kind zarr.Kind) error {
		depth := len(zarr.SplitPath(path))
		indent := strings.Repeat("  ", depth)
		name := "/" + path

		switch kind {
		case zarr.KindGroup:
			fmt.Fprintf(out, "%s%s (group)\n", indent, name)
		case zarr.KindArray:
			chain, err := f.Resolve(ctx, path, zarr.KindArray)
			if err != nil {
				return err
			}
			meta := chain.Leaf().(*zarr.Array).Metadata()
			compressor := "none"
			if meta.Compressor != nil {
				compressor = meta.Compressor.ID
			}
			fmt.Fprintf(out, "%s%s (array) dtype=%s shape=%v chunks=%v compressor=%s\n",
				indent, name, meta.DType, meta.Shape, meta.Chunks, compressor)
			if err := chain.Close(); err != nil {
				return err
			}
		}

		if !attrs {
			return nil
		}
		values, err := f.Attributes(ctx, path)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s  @%s = %s\n", indent, k, values[k])
		}
		return nil
	})
}
