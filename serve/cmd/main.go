package main

import (
	"os"

	"github.com/cdetools/cdecao/serve"
	"github.com/cdetools/cdecao/util"
)

func main() {
	util.Runner(os.Args[1:], serve.Run)
}
