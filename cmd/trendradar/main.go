package main

import (
	"os"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
