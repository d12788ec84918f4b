package main

import "github.com/kozaktomas/staff-portal/cmd"

func main() {
	cmd.Execute()
}
