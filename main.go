package main

import "github.com/ValentinKolb/rDBG/cmd"

func main() {
	cmd.Execute()
}
