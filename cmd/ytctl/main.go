package main

import "yolotrain/cmd/cli"

func main() {
	cli.Execute()
}
