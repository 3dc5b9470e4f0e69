package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"

	"github.com/openleague/livematch/internal/core/archive"
)

func main() {
	dbPath := flag.String("db", "livematch_archive.db", "archive database path")
	n := flag.Int("n", 10, "number of recent matches to display")
	matchID := flag.String("match", "", "dump one match with its full event log")
	verbose := flag.Bool("v", false, "show all columns (raw schema)")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "no archive at %s\n", *dbPath)
		os.Exit(1)
	}

	if *verbose {
		printRaw(*dbPath, *n)
		return
	}

	store, err := archive.OpenStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open archive: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *matchID != "" {
		printMatch(store, *matchID)
		return
	}
	printCompact(store, *n)
}

func printCompact(store *archive.Store, n int) {
	fmt.Println("=== Completed Matches ===")

	recs, err := store.Recent(n)
	if err != nil {
		fmt.Printf("  (query error: %v)\n", err)
		return
	}
	if len(recs) == 0 {
		fmt.Println("(no data)")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MATCH\tFIXTURE\tSCORE\tCLOCK\tATTEND\tEVENTS\tCOMPLETED\tFLAG")
	for _, rec := range recs {
		flagCol := "-"
		if rec.ErrorFlag {
			flagCol = "FAULT"
		}
		fmt.Fprintf(w, "%s\t%s vs %s\t%d-%d\t%d'\t%s\t%d\t%s\t%s\n",
			shortID(rec.MatchID), rec.HomeTeam, rec.AwayTeam,
			rec.HomeScore, rec.AwayScore, rec.GameTime/60,
			humanize.Comma(int64(rec.Attendance)), rec.EventCount,
			rec.CompletedAt.Local().Format("Jan 2 15:04"), flagCol)
	}
	w.Flush()
}

func printMatch(store *archive.Store, matchID string) {
	rec, ok, err := store.Get(matchID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load match: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "no archived match %q\n", matchID)
		os.Exit(1)
	}

	fmt.Printf("=== %s vs %s ===\n", rec.HomeTeam, rec.AwayTeam)
	fmt.Printf("Match:      %s\n", rec.MatchID)
	fmt.Printf("Final:      %d-%d after %d'\n", rec.HomeScore, rec.AwayScore, rec.GameTime/60)
	fmt.Printf("Attendance: %s\n", humanize.Comma(int64(rec.Attendance)))
	fmt.Printf("Completed:  %s (%s)\n",
		rec.CompletedAt.Local().Format(time.RFC1123), humanize.Time(rec.CompletedAt))
	if rec.ErrorFlag {
		fmt.Printf("Fault:      %s\n", rec.ErrorReason)
	}

	fmt.Printf("\nEvent log (%d):\n", len(rec.Log))
	for _, ev := range rec.Log {
		fmt.Printf("  %3d'  seq=%-3d %-12s %s\n", ev.Tick/60, ev.Seq, ev.Type, ev.Description)
	}
}

// printRaw dumps rows straight off the table, every column, newest last.
func printRaw(dbPath string, n int) {
	fmt.Println("=== Completed Matches (verbose) ===")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		fmt.Printf("  (cannot open %s: %v)\n", dbPath, err)
		return
	}
	defer db.Close()

	cols, err := schemaColumns(db, "completed_matches")
	if err != nil {
		fmt.Printf("  (cannot read schema: %v)\n", err)
		return
	}
	fmt.Printf("Schema: %s\n\n", strings.Join(cols, ", "))

	count := 0
	if err := db.QueryRow(`SELECT COUNT(*) FROM completed_matches`).Scan(&count); err != nil {
		fmt.Printf("  (cannot count rows: %v)\n", err)
		return
	}
	if count == 0 {
		fmt.Println("(no data)")
		return
	}

	fmt.Printf("Rows: %d  |  Showing last %d:\n", count, min(n, count))

	rows, err := db.Query(`SELECT id, match_id, home_team, away_team,
		home_score||'-'||away_score AS score, attendance, game_time,
		completed_at, error_flag, error_reason, event_count
	FROM completed_matches ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		fmt.Printf("  (query error: %v)\n", err)
		return
	}
	defer rows.Close()

	colNames, _ := rows.Columns()
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(colNames, "\t"))
	fmt.Fprintln(w, strings.Repeat("----\t", len(colNames)))

	vals := make([]any, len(colNames))
	ptrs := make([]any, len(colNames))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	var rowBuf [][]string
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			fmt.Fprintf(os.Stderr, "  scan error: %v\n", err)
			continue
		}
		cells := make([]string, len(colNames))
		for i, v := range vals {
			cells[i] = fmtCell(v)
		}
		rowBuf = append(rowBuf, cells)
	}

	for i := len(rowBuf) - 1; i >= 0; i-- {
		fmt.Fprintln(w, strings.Join(rowBuf[i], "\t"))
	}
	w.Flush()
}

func schemaColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt any
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, fmt.Sprintf("%s %s", name, ctype))
	}
	return cols, rows.Err()
}

func fmtCell(v any) string {
	if v == nil {
		return "-"
	}
	switch x := v.(type) {
	case int64:
		return fmt.Sprintf("%d", x)
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", v)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
