// Command unityasset-inspect parses a UnityFS bundle, raw SerializedFile,
// or .unitypackage archive given on the command line and prints a
// summary report: container kind, serialized file count, object counts
// by class, and warnings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/quay/zlog"

	"github.com/quay/unityasset"
)

func main() {
	var verbose bool
	fs := flag.NewFlagSet("unityasset-inspect", flag.ExitOnError)
	fs.BoolVar(&verbose, "v", false, "enable debug logging")
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s [-v] file [file ...]\n", os.Args[0])
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		Level(level).
		With().Timestamp().Logger()
	zlog.Set(&log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		<-ch
		cancel()
	}()

	exit := 0
	for _, name := range fs.Args() {
		if err := inspect(ctx, name); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			exit = 1
		}
	}
	os.Exit(exit)
}

func inspect(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ac, err := unityasset.Parse(ctx, path, data)
	if err != nil {
		return err
	}
	printSummary(path, ac)
	return nil
}

func printSummary(name string, ac *unityasset.AssetContext) {
	s := ac.Summary()
	fmt.Printf("%s\n", name)
	for _, c := range ac.Containers() {
		fmt.Printf("  container: kind=%s unity_version=%q entries=%d\n", c.Kind, c.UnityVersion, len(c.Entries))
	}
	fmt.Printf("  serialized_files: %d\n", s.SerializedFiles)
	if len(s.ObjectsByClass) > 0 {
		fmt.Println("  objects by class:")
		for classID, count := range s.ObjectsByClass {
			fmt.Printf("    %-6d %d\n", classID, count)
		}
	}
	if len(s.WarningsByCode) > 0 {
		fmt.Println("  warnings:")
		for code, count := range s.WarningsByCode {
			fmt.Printf("    %-40s %d\n", code, count)
		}
	}
	fmt.Println(strings.Repeat("-", 40))
}
