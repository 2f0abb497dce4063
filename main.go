// File: main.go
package main

import (
	"github.com/skymind/skymind/cmd"
)

func main() {
	cmd.Execute()
}
