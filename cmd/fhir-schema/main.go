// Package main is the entry point for the fhir-schema CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofhir/fhirschema/internal/cmd"
)

func main() {
	rootCmd := cmd.NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			// Only print if the command layer hasn't already printed it
			if !exitErr.Printed {
				fmt.Fprintln(os.Stderr, err)
			}
			os.Exit(exitErr.Code)
		}
		// Cobra usage errors and other unexpected failures
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitGeneralError)
	}
}
