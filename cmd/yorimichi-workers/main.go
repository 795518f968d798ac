package main

import (
	"os"

	"github.com/KevinLaRosa/yorimichi-workers/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
