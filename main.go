package main

import "github.com/lumstudio/yohub/cmd"

func main() {
	cmd.Execute()
}
