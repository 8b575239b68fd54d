package main

import "github.com/nextlevelbuilder/sentinel/cmd"

func main() {
	cmd.Execute()
}
