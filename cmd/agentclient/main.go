package main

import (
	"os"
)

func main() {
	if err := Execute(NewRoot()); err != nil {
		os.Exit(1)
	}
}
