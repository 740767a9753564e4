// Package main implements the gfxreplay-inspect tool.
// It reads a capture file, segments it into steps, and prints the raw and
// visibility-filtered timelines without needing a running service.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gfxreplay/gfxreplay/internal/segment"
	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/internal/step"
	"github.com/gfxreplay/gfxreplay/internal/trace"
)

func main() {
	var (
		showEvents  bool
		visibleOnly bool
		stepNumber  int
	)

	flag.BoolVar(&showEvents, "events", false, "Print individual events, not just step summaries")
	flag.BoolVar(&visibleOnly, "visible", false, "Restrict event listing to the visible subsequence")
	flag.IntVar(&stepNumber, "step", -1, "Limit output to a single step number")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gfxreplay-inspect [options] <capture.gfxcap>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	seq, traceID, err := trace.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read capture: %v", err)
	}

	steps := segment.NewSegmenter(seq).Segment()

	fmt.Printf("Capture:  %s\n", path)
	fmt.Printf("Trace ID: %s\n", traceID)
	fmt.Printf("Events:   %d\n", seq.Len())
	fmt.Printf("Types:    %d\n", seq.TypeCount())
	fmt.Printf("Steps:    %d\n\n", len(steps))

	if stepNumber >= len(steps) {
		log.Fatalf("Step %d does not exist (capture has %d steps)", stepNumber, len(steps))
	}

	for i, st := range steps {
		if stepNumber >= 0 && i != stepNumber {
			continue
		}
		printStep(seq, i, st, showEvents, visibleOnly)
	}
}

func printStep(seq *sequence.EventSequence, number int, st *step.Step, showEvents, visibleOnly bool) {
	kind := "state"
	frameInfo := ""
	if f := st.Frame(); f != nil {
		kind = "frame"
		frameInfo = fmt.Sprintf(" frame=%d id=%s", f.Number, f.FrameID)
	}

	fmt.Printf("step %d [%d, %d) %s raw=%d visible=%d%s\n",
		number, st.StartEventID(), st.EndEventID(), kind, st.Len(), st.VisibleLen(), frameInfo)

	if contexts := st.InitialContexts(); len(contexts) > 0 {
		fmt.Printf("  initial contexts:")
		for id := range contexts {
			fmt.Printf(" %d", id)
		}
		fmt.Printf("\n")
	}

	if !showEvents {
		return
	}

	it := st.EventIterator(visibleOnly)
	for {
		ev, ok := it.Next()
		if !ok {
			break
		}
		marker := " "
		if ev.Hidden {
			marker = "h"
		}
		fmt.Printf("  %6d %s %-24s thread=%d context=%d\n",
			ev.ID, marker, seq.TypeName(ev.Type), ev.ThreadID, ev.Context)
	}
}
