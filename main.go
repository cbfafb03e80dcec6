package main

import "github.com/shouni/go-web-fetch/cmd"

func main() {
	cmd.Execute()
}
