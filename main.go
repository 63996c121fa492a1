package main

import "github.com/devicelab-dev/appium-compat/pkg/cli"

func main() {
	cli.Execute()
}
