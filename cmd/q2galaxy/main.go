package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/me/q2galaxy/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		var exit *cli.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
