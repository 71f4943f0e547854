// orgctl lists, switches and creates organizations and inspects capabilities, either
// against a running server (--addr) or directly against the database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openBackend, openDirectory).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "orgctl:", err)
		os.Exit(1)
	}
}
