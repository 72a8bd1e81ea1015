package main

import "clipstack/cmd"

func main() {
	cmd.Run()
}
