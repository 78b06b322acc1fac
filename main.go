package main

import "meetmap-backend/cmd"

func main() {
	cmd.Run()
}
