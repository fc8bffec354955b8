package main

import "github.com/KaramelBytes/funnelscope/cmd"

func main() {
	cmd.Execute()
}
