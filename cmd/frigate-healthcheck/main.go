package main

import "github.com/oshokin/frigate-notifier/cmd/frigate-healthcheck/cmd"

func main() {
	cmd.Execute()
}
