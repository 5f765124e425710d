package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			serve()
			return
		case "demo":
			demo()
			return
		}
	}
	fmt.Println("conveyor v0.1.0")
	fmt.Println("Usage: conveyor serve | demo")
}
