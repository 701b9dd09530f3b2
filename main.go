package main

import (
	"log"

	"github.com/expeditorhq/expeditor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
