package main

import "github.com/stevehiehn/adws/cmd"

func main() {
	cmd.Execute()
}
