package main

import (
	"chat-relay/repositories"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, msgid:, user:, email:, or empty for everything)")
	flag.Parse()

	// Read-only so that a running relay keeps its lock
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Kind", "Created At", "Subject", "Detail", "Key"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows, broken := 0, 0
	err = repositories.ScanRecords(db, *prefix, func(record repositories.Record, err error) {
		if err != nil {
			broken++
			color.Red.Printf("Skipping undecodable record: %v\n", err)
			return
		}
		createdAt := "-"
		if !record.CreatedAt.IsZero() {
			createdAt = record.CreatedAt.Format(time.RFC3339)
		}
		table.Append([]string{record.Kind, createdAt, record.Subject, truncate(record.Detail, 80), record.Key})
		rows++
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	table.Render()
	color.Green.Printf("\n%d record(s) under prefix %q", rows, *prefix)
	if broken > 0 {
		color.Yellow.Printf(", %d undecodable", broken)
	}
	fmt.Println()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
