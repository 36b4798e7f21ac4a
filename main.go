package main

import "price-aggregator/cmd"

func main() {
	cmd.Execute()
}
