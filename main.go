package main

import "github.com/frahmantamala/project-access/cmd"

func main() {
	cmd.Execute()
}
