package main

import "github.com/goar-build/goar/cmd/goar/internal"

func main() {
	internal.Execute()
}
