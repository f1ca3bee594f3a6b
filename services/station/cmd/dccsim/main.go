// Command dccsim drives the command station on the host simulator.
package main

import (
	"os"

	"github.com/golang/glog"
)

func main() {
	err := Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
