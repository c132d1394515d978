package main

import "github.com/oshokin/frigate-notifier/cmd/frigate-snooze/cmd"

func main() {
	cmd.Execute()
}
