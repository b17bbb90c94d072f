// main executable.
package main

import (
	"os"

	"github.com/bluenviron/remuxer/internal/core"
)

func main() {
	os.Exit(core.Run(os.Args[1:]))
}
