package main

import (
	"fmt"
	"os"

	"github.com/arguslabs/argus/server/reminderservice"
)

func main() {
	if err := reminderservice.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
