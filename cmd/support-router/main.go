package main

import (
	"log"

	"github.com/spec-kit/support-router/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
