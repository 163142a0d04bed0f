package main

import (
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errSecretMismatch) {
			os.Exit(exitMismatch)
		}

		exitOnError(err)
	}
}
