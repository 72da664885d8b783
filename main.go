package main

import (
	"github.com/HalfdanJ/nodeftpd/cmd"
	"github.com/HalfdanJ/nodeftpd/pprof"
)

func main() {
	pprof.StartPP()
	cmd.Execute()
}
