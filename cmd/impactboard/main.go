package main

import (
	"context"
	"log"
	"os"
)

func main() {
	if err := Main(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}
