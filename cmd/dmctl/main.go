package main

import (
	"errors"
	"fmt"
	"os"

	"dmcore/pkg/dmclient"
)

func main() {
	if err := dmclient.RunCLI(os.Args[0], os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var usage dmclient.UsageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, usage.Error())
			for _, line := range usage.UsageLines() {
				fmt.Fprintln(os.Stderr, line)
			}
			os.Exit(2)
		}
		os.Exit(1)
	}
}
