// Command mkdwarfs scans a source directory tree and writes a DwarFS
// image, mirroring the original tool's -i/-o build invocation.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/dwarfs-go/dwarfs/internal/categorize"
	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/internal/logging"
	"github.com/dwarfs-go/dwarfs/internal/scanner/filter"
	"github.com/dwarfs-go/dwarfs/internal/scanner/transform"
	"github.com/dwarfs-go/dwarfs/writer"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("mkdwarfs", pflag.ContinueOnError)
	input := flags.StringP("input", "i", "", "path to root directory to scan")
	output := flags.StringP("output", "o", "", "output image path")
	level := flags.IntP("compress-level", "l", 19, "compression level")
	compression := flags.StringP("compression", "C", "zstd", "block compressor: none, gzip, zstd, xz")
	blockBits := flags.IntP("block-size-bits", "S", 24, "block size as a power of two")
	workers := flags.IntP("num-workers", "N", 0, "compression worker count (0 = GOMAXPROCS)")
	include := flags.StringArray("filter", nil, "include glob rule, repeatable")
	exclude := flags.StringArray("exclude", nil, "exclude glob rule, repeatable")
	chmodSpec := flags.String("chmod", "", "chmod(1)-style mode transform applied to every entry")
	withDevices := flags.Bool("with-devices", false, "archive device inodes")
	withSpecials := flags.Bool("with-specials", false, "archive named pipes and sockets")
	removeEmptyDirs := flags.Bool("remove-empty-dirs", false, "prune directories with no archived descendant")
	noCreateTimestamp := flags.Bool("no-create-timestamp", false, "pin the timestamp base to the Unix epoch")
	keepAllTimes := flags.Bool("keep-all-times", true, "store atime/ctime distinctly from mtime")
	noHistory := flags.Bool("no-history", false, "omit the HISTORY section")
	noSectionIndex := flags.Bool("no-section-index", false, "omit the trailing INDEX section")
	owner := flags.Int("set-owner", -1, "force every entry's uid")
	group := flags.Int("set-group", -1, "force every entry's gid")
	verbose := flags.BoolP("verbose", "v", false, "log progress to stderr")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *input == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "mkdwarfs: --input and --output are required")
		return 1
	}

	tag, err := parseCodec(*compression)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mkdwarfs:", err)
		return 1
	}

	var rules []filter.Rule
	for _, p := range *include {
		rules = append(rules, filter.Rule{Pattern: p, Include: true})
	}
	for _, p := range *exclude {
		rules = append(rules, filter.Rule{Pattern: p, Include: false})
	}

	opts := []writer.Option{
		writer.WithBlockSize(int64(1) << *blockBits),
		writer.WithCompression(tag, map[string]string{"level": fmt.Sprint(*level)}),
		writer.WithWorkers(*workers),
		writer.WithDevices(*withDevices),
		writer.WithSpecials(*withSpecials),
		writer.WithRemoveEmptyDirs(*removeEmptyDirs),
		writer.WithKeepAllTimes(*keepAllTimes),
		writer.WithCategorizer(categorize.Incompressible),
	}
	if len(rules) > 0 {
		opts = append(opts, writer.WithFilter(filter.New(rules...)))
	}
	if *chmodSpec != "" {
		c, err := transform.Parse(*chmodSpec, 0)
		if err != nil {
			fmt.Fprintln(os.Stderr, "mkdwarfs: --chmod:", err)
			return 1
		}
		opts = append(opts, writer.WithChmod(c))
	}
	if *noCreateTimestamp {
		opts = append(opts, writer.WithNoCreateTimestamp())
	}
	if *noHistory {
		opts = append(opts, writer.WithNoHistory())
	}
	if *noSectionIndex {
		opts = append(opts, writer.WithNoSectionIndex())
	}
	if *owner >= 0 {
		opts = append(opts, writer.WithOwner(uint32(*owner)))
	}
	if *group >= 0 {
		opts = append(opts, writer.WithGroup(uint32(*group)))
	}
	if *verbose {
		opts = append(opts, writer.WithLogger(logging.NewConsole(zerolog.InfoLevel)))
	}

	w, err := writer.NewWriter(opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mkdwarfs:", err)
		return 1
	}

	srcFS := os.DirFS(*input)
	if err := w.AddTree(srcFS, "."); err != nil {
		fmt.Fprintln(os.Stderr, "mkdwarfs: scan:", err)
		return 2
	}

	out, err := os.Create(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mkdwarfs:", err)
		return 1
	}
	defer out.Close()

	start := time.Now()
	if err := w.Finalize(context.Background(), out); err != nil {
		fmt.Fprintln(os.Stderr, "mkdwarfs: finalize:", err)
		return 1
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "mkdwarfs: wrote %s in %s\n", *output, time.Since(start).Round(time.Millisecond))
	}
	return 0
}

func parseCodec(name string) (codec.Tag, error) {
	switch name {
	case "none":
		return codec.None, nil
	case "gzip":
		return codec.GZip, nil
	case "zstd":
		return codec.Zstd, nil
	case "xz":
		return codec.XZ, nil
	default:
		return 0, fmt.Errorf("unknown compressor %q", name)
	}
}
