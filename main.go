package main

import "keychainkit/cmd"

func main() {
	cmd.Execute()
}
