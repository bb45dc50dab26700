// Command chvm loads a textual bytecode image and runs it to completion,
// printing the spec's one-line diagnostic and exiting non-zero on any
// fatal VM error. Grounded on GVM's main.go/run.go flag-parsing-then-run
// shape.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chlang-rt/chvm/vm"
	"github.com/chlang-rt/chvm/vmsys"
)

func main() {
	debug := flag.Bool("debug", false, "trace every dispatched instruction to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: chvm [-debug] <image-path>")
		os.Exit(2)
	}

	os.Exit(run(flag.Arg(0), *debug))
}

func run(imagePath string, debug bool) int {
	f, err := os.Open(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "IoError: %s\n", err)
		return 1
	}
	defer f.Close()

	program, err := vm.LoadImage(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	syscalls := vmsys.New()
	defer syscalls.Close()

	machine := vm.New(program, syscalls, vm.NewFunctionResolver(nil), vm.Options{Debug: debug})
	if err := machine.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
