// Routerctl is the router's admin CLI: declare broker topology ahead of a
// deployment, start a flow by publishing a cargo payload to a work class,
// and inspect a packet captured off the wire.
package main

import (
	"fmt"
	"os"

	"github.com/sitobox/queuerouter/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
