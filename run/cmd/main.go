package main

import (
	"os"

	"github.com/cdetools/cdecao/run"
	"github.com/cdetools/cdecao/util"
)

func main() {
	util.Runner(os.Args[1:], run.Run)
}
