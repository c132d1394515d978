package main

import "github.com/oshokin/frigate-notifier/cmd/frigate-notifier/cmd"

func main() {
	cmd.Execute()
}
