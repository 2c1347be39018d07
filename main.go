package main

import "appack/internal/appack"

func main() {
	appack.Main()
}
