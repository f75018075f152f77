// Command sausalign aligns Kaldi confusion networks ("sausages") with
// reference transcripts, from the command line or as an HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "sausalign:", err)
		}
		os.Exit(1)
	}
}
