package main

import "github.com/coherentcalendar/coherent-events/internal/cli"

var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
