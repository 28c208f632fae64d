package main

import "github.com/frahmantamala/marketplace-settlement/cmd"

func main() {
	cmd.Execute()
}
