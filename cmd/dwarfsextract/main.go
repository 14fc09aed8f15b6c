// Command dwarfsextract unpacks a DwarFS image to a plain directory tree,
// mirroring the original tool's -i/--output extraction surface (the
// libarchive container-format mode is out of scope here).
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/dwarfs-go/dwarfs"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("dwarfsextract", pflag.ContinueOnError)
	input := flags.StringP("input", "i", "", "path to the image file")
	outDir := flags.StringP("output", "o", "", "destination directory")
	imageOffset := flags.Int64P("image-offset", "O", 0, "byte offset of the image signature within --input")
	workers := flags.IntP("num-workers", "n", 0, "decompression worker count (0 = GOMAXPROCS)")
	cacheSize := flags.Int64P("cache-size", "s", 256<<20, "block cache size in bytes")
	quiet := flags.BoolP("quiet", "q", false, "suppress progress output")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *input == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "dwarfsextract: --input and --output are required")
		return 1
	}

	fsys, err := dwarfs.Open(*input,
		dwarfs.WithImageOffset(*imageOffset),
		dwarfs.WithWorkers(*workers),
		dwarfs.WithCacheBytes(*cacheSize),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dwarfsextract:", err)
		return 1
	}
	defer fsys.Close()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "dwarfsextract:", err)
		return 1
	}

	recoverable := 0
	err = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			fmt.Fprintf(os.Stderr, "dwarfsextract: %s: %s\n", name, err)
			recoverable++
			return nil
		}
		dest := filepath.Join(*outDir, filepath.FromSlash(name))
		info, err := d.Info()
		if err != nil {
			fmt.Fprintf(os.Stderr, "dwarfsextract: %s: %s\n", name, err)
			recoverable++
			return nil
		}

		switch {
		case d.IsDir():
			err = os.MkdirAll(dest, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			var target string
			target, err = fsys.ReadLink(name)
			if err == nil {
				err = os.Symlink(target, dest)
			}
		default:
			err = extractFile(fsys, name, dest, info.Mode().Perm())
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "dwarfsextract: %s: %s\n", name, err)
			recoverable++
		} else if !*quiet {
			fmt.Println(dest)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "dwarfsextract:", err)
		return 1
	}
	if recoverable > 0 {
		return 2
	}
	return 0
}

func extractFile(fsys *dwarfs.Filesystem, name, dest string, perm fs.FileMode) error {
	data, err := fsys.ReadFile(name)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, perm)
}
