package main

import (
	"os"

	"github.com/cdetools/cdecao/solve"
	"github.com/cdetools/cdecao/util"
)

func main() {
	util.Runner(os.Args[1:], solve.Run)
}
