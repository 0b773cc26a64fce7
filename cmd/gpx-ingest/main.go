package main

import "github.com/ojparkinson/gpx-ingest/cmd/gpx-ingest/cmd"

func main() {
	cmd.Execute()
}
