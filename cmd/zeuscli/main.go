package main

import (
	"github.com/robotalks/zeus.go/pkg/cli/sh"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
