package main

import "github.com/MeKo-Tech/photocheck/cmd/photocheck/cmd"

func main() {
	cmd.Execute()
}
