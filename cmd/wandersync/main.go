// Command wandersync is the CLI for the trip sync engine: manage local
// trips, run sync passes, and host the background daemon and dashboard.
package main

func main() {
	Execute()
}
