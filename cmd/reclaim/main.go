package main

import "github.com/denialdesk/reclaim/internal/cli"

func main() {
	cli.Execute()
}
