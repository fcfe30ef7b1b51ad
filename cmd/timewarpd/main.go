// Command timewarpd is the Time Warp federation runtime binary.
package main

import (
	"fmt"
	"os"

	"github.com/vitaliisemenov/timewarp/cmd/timewarpd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
