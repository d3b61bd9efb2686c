package main

import "github.com/aviroy619/critical-css-service/server"

func main() {
	server.Main()
}
