// Command symbolize-self demonstrates symbolizing addresses from the
// process's own running image: it captures a small Go call stack with
// runtime.Callers and resolves each return address back to a function
// name via the Process source.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/mvandenburgh/symbolize"
)

func main() {
	addrs := collectCallers()
	if len(addrs) == 0 {
		slog.Error("failed to capture any caller addresses")
		os.Exit(1)
	}

	sym := symbolize.NewSymbolizer()
	results, err := sym.Symbolize(symbolize.ProcessSource(symbolize.Self()), addrs)
	if err != nil {
		slog.Error("symbolize failed", "error", err)
		os.Exit(1)
	}

	for i, frames := range results {
		if len(frames) == 0 {
			fmt.Printf("0x%x: <unknown>\n", addrs[i])
			continue
		}
		for _, f := range frames {
			loc := ""
			if f.AddrLineInfo != nil {
				loc = fmt.Sprintf(" (%s:%d)", f.File, f.Line)
			}
			fmt.Printf("0x%x: %s+0x%x%s\n", addrs[i], f.Name, f.Offset, loc)
			for _, inl := range f.Inline {
				fmt.Printf("  inlined: %s\n", inl.Name)
			}
		}
	}
}

func collectCallers() []uint64 {
	pc := make([]uintptr, 16)
	n := runtime.Callers(1, pc)
	pc = pc[:n]

	addrs := make([]uint64, 0, n)
	for _, p := range pc {
		addrs = append(addrs, uint64(p))
	}
	return addrs
}
