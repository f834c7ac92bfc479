// Command policyconv converts fleet policy PDFs from the command line.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/toricodesthings/policy-extraction-service/internal/config"
	"github.com/toricodesthings/policy-extraction-service/internal/convert"
)

func main() {
	root := newRootCmd(func(cfg config.Config, logger *zap.Logger, opts ...convert.Option) (*convert.Converter, error) {
		return convert.FromConfig(cfg, logger, nil, opts...)
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
