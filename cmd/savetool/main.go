package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"fracturedechoes.app/internal/save"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "show":
			showCmd(os.Args[2:])
			return
		case "verify":
			verifyCmd(os.Args[2:])
			return
		case "ledger":
			ledgerCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("savetool", flag.ExitOnError)
	saveDir := fs.String("saves", "./data/saves", "save directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(*saveDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		doc, err := readDoc(filepath.Join(*saveDir, name))
		if err != nil {
			fmt.Printf("%s\tUNREADABLE (%v)\n", name, err)
			continue
		}
		fmt.Printf("%s\tsaved_at=%s location=%s play_time=%.0fs entries=%d\n",
			name, doc.SavedAt, doc.Location, doc.PlayTime, len(doc.Entries))
	}
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	path := fs.String("file", "", "save file path")
	_ = fs.Parse(args)

	doc := mustReadDoc(*path)
	fmt.Printf("version=%d saved_at=%s location=%s play_time=%.1fs\n", doc.Version, doc.SavedAt, doc.Location, doc.PlayTime)
	for _, e := range doc.Entries {
		fmt.Printf("  %s\t%s\t%d bytes\n", e.SaveID, e.TypeTag, len(e.StateJSON))
	}
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	path := fs.String("file", "", "save file path")
	_ = fs.Parse(args)

	doc := mustReadDoc(*path)
	seen := map[string]bool{}
	dups := 0
	for _, e := range doc.Entries {
		if seen[e.SaveID] {
			fmt.Printf("duplicate save_id: %s\n", e.SaveID)
			dups++
		}
		seen[e.SaveID] = true
	}
	if dups > 0 {
		os.Exit(1)
	}
	fmt.Printf("ok: %d entries, ids unique\n", len(doc.Entries))
}

// ledgerCmd prints the scripted-event ledger entry of a save file, the part
// most often inspected when debugging a replayed one-shot event.
func ledgerCmd(args []string) {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	path := fs.String("file", "", "save file path")
	_ = fs.Parse(args)

	doc := mustReadDoc(*path)
	for _, e := range doc.Entries {
		if e.TypeTag == "scripted_event_ledger" {
			fmt.Println(e.StateJSON)
			return
		}
	}
	fmt.Fprintln(os.Stderr, "no ledger entry in document")
	os.Exit(1)
}

func mustReadDoc(path string) save.Document {
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}
	doc, err := readDoc(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read save:", err)
		os.Exit(1)
	}
	return doc
}

func readDoc(path string) (save.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return save.Document{}, err
	}
	return save.DecodeDocument(b)
}
