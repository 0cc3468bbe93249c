// Command labextract is the CLI entrypoint: analyze page structure, extract
// biomarkers locally, or submit async extraction jobs.
package main

import (
	"os"

	"github.com/aman-ankur/labextract/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
