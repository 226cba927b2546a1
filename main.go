package main

import (
	"os"

	"github.com/firefly-engineering/hearth/cmd"
	"github.com/firefly-engineering/hearth/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
