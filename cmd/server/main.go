package main

import "github.com/openleague/livematch/internal/process"

func main() {
	process.Run()
}
