package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ccollins476ad/imgfetch/fetch"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Dir     string        // Directory to save images to.
	Verbose bool          // True for verbose output.
	Jobs    int           // Number of album lookups to run in parallel.
	Delay   time.Duration // Pause between consecutive downloads.
	File    string        // Optional file to read urls from.
	URLs    []string      // Urls given on the command line.
}

// Interactive reports whether no urls were supplied, in which case imgfetch
// prompts for them.
func (cfg *Config) Interactive() bool {
	return len(cfg.URLs) == 0 && cfg.File == ""
}

// envConfig holds the settings that can come from the environment or a .env
// file. Variables are prefixed with IMGFETCH_.
type envConfig struct {
	Dir string `envconfig:"DIR"`
}

func loadEnv() (*envConfig, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	ec := &envConfig{}
	err = envconfig.Process("imgfetch", ec)
	if err != nil {
		return nil, err
	}

	return ec, nil
}

func parseArgs(args []string, output io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("imgfetch", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() { usage(fs) }

	dir := fs.String("d", "", "directory to save images to (default $IMGFETCH_DIR or "+fetch.DefaultDir+")")
	verbose := fs.Bool("v", false, "verbose output")
	jobs := fs.Int("j", 4, "album lookups to run in parallel")
	delay := fs.Duration("delay", fetch.DefaultDelay, "pause between downloads")
	file := fs.String("f", "", "read urls from file")

	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}

	if *jobs < 1 {
		return nil, fmt.Errorf("invalid job count: have=%d want>=1", *jobs)
	}
	if *delay < 0 {
		return nil, fmt.Errorf("invalid delay: %s", *delay)
	}

	cfg := &Config{
		Dir:     *dir,
		Verbose: *verbose,
		Jobs:    *jobs,
		Delay:   *delay,
		File:    *file,
		URLs:    fs.Args(),
	}

	if cfg.Dir == "" {
		ec, err := loadEnv()
		if err != nil {
			return nil, err
		}
		cfg.Dir = ec.Dir
	}
	if cfg.Dir == "" {
		cfg.Dir = fetch.DefaultDir
	}

	return cfg, nil
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: %s [option]... [url]...\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(fs.Output(), "Downloads images into a local directory, skipping duplicates and anything that isn't an image.\n")
	fmt.Fprintf(fs.Output(), "Prompts for urls when none are given.\n")
	fs.PrintDefaults()
}
