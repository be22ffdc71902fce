// Command flexijoin is a small smoke-test runner: it loads two CSV files as
// L and R, joins them with one of the named canonical conditions, and
// prints the resulting pairs (or groups) to stdout.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sharedcode/flexijoin"
)

// row is a CSV record as a header-keyed map, the shape every condition in
// this harness assumes.
type row map[string]any

func loadCSV(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	var rows []row
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		r := make(row, len(header))
		for i, col := range header {
			if i >= len(rec) {
				continue
			}
			r[col] = parseCell(rec[i])
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func parseCell(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func buildCondition(name, key string) flexijoin.Condition {
	switch name {
	case "by_key":
		return flexijoin.ByKey(key)
	case "by_pred_lt":
		return flexijoin.ByPred(key, flexijoin.OpLT, key)
	default:
		fmt.Fprintf(os.Stderr, "unknown condition %q, falling back to by_key\n", name)
		return flexijoin.ByKey(key)
	}
}

func main() {
	lPath := flag.String("l", "", "left CSV path")
	rPath := flag.String("r", "", "right CSV path")
	key := flag.String("key", "", "join field name")
	cond := flag.String("cond", "by_key", "condition: by_key | by_pred_lt")
	outer := flag.String("mode", "inner", "inner | left | right | full")
	flag.Parse()

	if *lPath == "" || *rPath == "" || *key == "" {
		fmt.Println("Usage: flexijoin -l left.csv -r right.csv -key field [-cond by_key] [-mode inner]")
		os.Exit(1)
	}

	flexijoin.ConfigureLogging()

	lRows, err := loadCSV(*lPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rRows, err := loadCSV(*rPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	l := flexijoin.NewSliceSide(lRows)
	r := flexijoin.NewSliceSide(rRows)

	var opts flexijoin.Options
	switch *outer {
	case "inner":
		opts = flexijoin.Inner()
	case "left":
		opts = flexijoin.LeftOuter()
	case "right":
		opts = flexijoin.RightOuter()
	case "full":
		opts = flexijoin.FullOuter()
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *outer)
		os.Exit(1)
	}

	res, err := flexijoin.Join(l, r, buildCondition(*cond, *key), opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "join failed:", err)
		os.Exit(1)
	}

	for _, p := range res.Flat {
		lRec, rRec := res.Row(p)
		fmt.Printf("L[%v]=%v  R[%v]=%v\n", p.L, lRec, p.R, rRec)
	}
	fmt.Printf("%d pairs\n", len(res.Flat))
}
