package main

import "emailthing/internal/cli"

func main() {
	cli.Execute()
}
