package main

import (
	"fmt"
	"os"

	"github.com/VanDung-dev/POA-Engine/poa-engine/api"
	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
)

// Name is the product name.
const Name = "POA-Engine"

func main() {
	fmt.Printf("%s v%s\n", Name, api.Version)
	fmt.Println("Consensus binding and server for the native POA engine")
	if binding.NativeAvailable() {
		fmt.Println("Native engine: linked")
	} else {
		fmt.Println("Native engine: not linked (build with -tags spoa)")
	}
	fmt.Println("Run cmd/poa-server to serve requests")
	os.Exit(0)
}
