package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/photoflow/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   SQLite database path (default from Config)
//	-n int      max concurrent uploads (default from Config)
//	-f          force upload, skipping the duplicate check
//	-rm         delete local files after a confirmed upload
//	-s          request storage saver quality
//	-q          count uploads against account quota at original quality
//	-r          scan directories recursively (default from Config)
//	-t int      HTTP request timeout in seconds (default from Config)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-n", "-f", "-rm", "-s", "-q", "-r", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "path to the local sqlite database")
	fs.IntVar(&cfg.MaxConcurrency, "n", cfg.MaxConcurrency, "max concurrent uploads")
	fs.BoolVar(&cfg.ForceUpload, "f", cfg.ForceUpload, "upload even when the file already exists in the library")
	fs.BoolVar(&cfg.DeleteAfterUpload, "rm", cfg.DeleteAfterUpload, "delete local files after a confirmed upload")
	fs.BoolVar(&cfg.StorageSaver, "s", cfg.StorageSaver, "upload in storage saver quality")
	fs.BoolVar(&cfg.UseQuota, "q", cfg.UseQuota, "count uploads against the account quota")
	fs.BoolVar(&cfg.RecursiveScan, "r", cfg.RecursiveScan, "scan directories recursively")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "http request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
