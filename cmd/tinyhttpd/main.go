package main

import "github.com/wetrycode/tinyhttpd/command"

func main() {
	command.ExecuteCmd()
}
