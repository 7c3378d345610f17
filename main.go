package main

import "github.com/ValentinKolb/segkv/cmd"

func main() {
	cmd.Execute()
}
