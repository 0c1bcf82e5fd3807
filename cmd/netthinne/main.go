package main

import "github.com/MeKo-Tech/netthinne/cmd/netthinne/cmd"

func main() {
	cmd.Execute()
}
