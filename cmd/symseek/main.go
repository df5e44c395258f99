package main

import "github.com/mvp-joe/symseek/internal/cli"

func main() {
	cli.Execute()
}
