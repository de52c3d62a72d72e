package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"camsync/internal/extract"
	"camsync/internal/indexbuild"
	"camsync/internal/pipeline"
	"camsync/internal/services"
)

var numbers = message.NewPrinter(language.English)

func formatCount[N ~int | ~int64](n N) string {
	return numbers.Sprintf("%d", int64(n))
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func printReport(out io.Writer, rep pipeline.Report) {
	if rep.RunID == "" {
		return
	}
	p := newPainter(out)
	fmt.Fprintf(out, "Run %s (%s) finished in %s\n", rep.RunID, rep.Stage, formatElapsed(rep.Elapsed))
	if len(rep.Builds) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderBuildTable(rep.Builds, p))
	}
	if len(rep.Unloaded) > 0 {
		cameras := make([]string, 0, len(rep.Unloaded))
		for cam := range rep.Unloaded {
			cameras = append(cameras, cam)
		}
		sort.Strings(cameras)
		fmt.Fprintf(out, "Cameras without a usable index: %s\n", p.paint(toneWarn, strings.Join(cameras, ", ")))
	}
	if res := rep.Sync; res != nil && res.Manifest != nil {
		fmt.Fprintln(out)
		state, t := "written", toneGood
		switch {
		case res.Reused:
			state, t = "reused", toneNeutral
		case res.Resumed > 0:
			state, t = "written (resumed)", toneWarn
		}
		fmt.Fprintf(out, "Manifest %s: %s\n", p.paint(t, state), res.Path)
		fmt.Fprintf(out, "  Reference sets: %s\n", formatCount(res.Manifest.Len()))
		fmt.Fprintf(out, "  Matches:        %s\n", formatCount(res.Manifest.MatchCount()))
		if !res.Reused {
			fmt.Fprintf(out, "  Queries:        %s\n", formatCount(res.Queries))
			if res.Resumed > 0 {
				fmt.Fprintf(out, "  Resumed sets:   %s\n", formatCount(res.Resumed))
			}
		}
	}
	if rep.Extract != nil {
		printExtractReport(out, *rep.Extract, p)
	}
}

func renderBuildTable(builds []indexbuild.Outcome, p painter) string {
	rows := make([][]string, 0, len(builds))
	for _, b := range builds {
		detail := ""
		if b.Err != nil {
			detail = services.ErrorKind(b.Err)
		}
		records := "-"
		if b.Records > 0 {
			records = formatCount(b.Records)
		}
		status := p.paint(outcomeTone(b.Status), string(b.Status))
		rows = append(rows, []string{b.Camera, status, records, formatElapsed(b.Elapsed), detail})
	}
	return renderTable(
		[]column{textCol("Camera"), textCol("Outcome"), numCol("Records"), numCol("Elapsed"), textCol("Error")},
		rows,
	)
}

func printExtractReport(out io.Writer, rep extract.Report, p painter) {
	failTone := toneGood
	if rep.Failed() > 0 {
		failTone = toneBad
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Frames written: %s, skipped: %s, failed: %s\n",
		formatCount(rep.Written), formatCount(rep.Skipped), p.paint(failTone, formatCount(rep.Failed())))
	if rep.Failed() == 0 {
		return
	}
	rows := make([][]string, 0, len(rep.Failures))
	for _, f := range rep.Failures {
		rows = append(rows, []string{
			fmt.Sprintf("%d", f.Reference),
			f.Camera,
			fmt.Sprintf("%d", f.Frame),
			services.ErrorKind(f.Err),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]column{numCol("Reference"), textCol("Camera"), numCol("Frame"), textCol("Error")},
		rows,
	))
}
