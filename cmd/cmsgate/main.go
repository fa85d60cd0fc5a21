package main

import "github.com/ideamans/cmsgate/cmd/cmsgate/cmd"

func main() {
	cmd.Execute()
}
