// Package main is a command line front end for running VQE problems locally,
// without the server or a database.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
