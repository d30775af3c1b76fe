// Command bustub is a line-oriented driver over a disk-backed B+tree: each
// line is one instruction, read until EOF. It exists to exercise the index
// against a real page file from a terminal, the way the original project's
// test binaries replayed instruction files against an in-memory tree.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chaixuqing/bustub/buffer"
	"github.com/chaixuqing/bustub/common"
	"github.com/chaixuqing/bustub/disk"
	"github.com/chaixuqing/bustub/storage/index"
	"github.com/chaixuqing/bustub/wal"
)

func main() {
	dbFile := flag.String("db", "bustub.db", "path to the page file")
	poolSize := flag.Int("pool-size", 64, "number of buffer pool frames")
	leafMaxSize := flag.Int("leaf-max-size", 32, "max entries per leaf page")
	internalMaxSize := flag.Int("internal-max-size", 32, "max entries per internal page")
	flag.Parse()

	dm, err := disk.NewManager(*dbFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bustub: open %s: %v\n", *dbFile, err)
		os.Exit(1)
	}
	defer dm.Close()

	logManager := wal.NewSimpleLogManager(nil)
	bpm := buffer.NewBufferPool(*poolSize, dm, logManager)
	tree := index.NewTree("demo", bpm, logManager, index.Int64Comparator, *leafMaxSize, *internalMaxSize)

	if err := run(os.Stdin, os.Stdout, tree, bpm); err != nil {
		fmt.Fprintf(os.Stderr, "bustub: %v\n", err)
		os.Exit(1)
	}
}

func run(in *os.File, out *os.File, tree *index.Tree[index.Int64Key], bpm *buffer.BufferPool) error {
	scanner := bufio.NewScanner(in)
	w := bufio.NewWriter(out)
	defer w.Flush()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		cmd := fields[0]

		switch cmd {
		case "insert":
			key, err := requireKey(fields)
			if err != nil {
				fmt.Fprintln(w, "error:", err)
				continue
			}
			ok, err := tree.Insert(index.Int64Key{V: key}, common.RID{PageID: key, SlotNum: 0})
			if err != nil {
				fmt.Fprintln(w, "error:", err)
				continue
			}
			if !ok {
				fmt.Fprintf(w, "duplicate %d\n", key)
				continue
			}
			fmt.Fprintf(w, "inserted %d\n", key)

		case "delete":
			key, err := requireKey(fields)
			if err != nil {
				fmt.Fprintln(w, "error:", err)
				continue
			}
			if err := tree.Remove(index.Int64Key{V: key}); err != nil {
				fmt.Fprintln(w, "error:", err)
				continue
			}
			fmt.Fprintf(w, "deleted %d\n", key)

		case "get":
			key, err := requireKey(fields)
			if err != nil {
				fmt.Fprintln(w, "error:", err)
				continue
			}
			rids, ok, err := tree.GetValue(index.Int64Key{V: key})
			if err != nil {
				fmt.Fprintln(w, "error:", err)
				continue
			}
			if !ok {
				fmt.Fprintf(w, "not found %d\n", key)
				continue
			}
			fmt.Fprintf(w, "%d -> %+v\n", key, rids[0])

		case "scan":
			if err := scan(w, tree, fields); err != nil {
				fmt.Fprintln(w, "error:", err)
			}

		case "print":
			fmt.Fprintf(w, "empty: %v\n", tree.IsEmpty())

		case "flush":
			if err := bpm.FlushAllPages(); err != nil {
				fmt.Fprintln(w, "error:", err)
				continue
			}
			fmt.Fprintln(w, "flushed")

		default:
			fmt.Fprintf(w, "unknown command %q\n", cmd)
		}
	}
	return scanner.Err()
}

func requireKey(fields []string) (int64, error) {
	if len(fields) != 2 {
		return 0, fmt.Errorf("expected one integer argument, got %d", len(fields)-1)
	}
	return strconv.ParseInt(fields[1], 10, 64)
}

func scan(w *bufio.Writer, tree *index.Tree[index.Int64Key], fields []string) error {
	var it *index.Iterator[index.Int64Key]
	var err error
	if len(fields) >= 2 {
		key, perr := strconv.ParseInt(fields[1], 10, 64)
		if perr != nil {
			return perr
		}
		it, err = tree.BeginAt(index.Int64Key{V: key})
	} else {
		it, err = tree.Begin()
	}
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Valid() {
		fmt.Fprintf(w, "%d -> %+v\n", it.Key().V, it.Value())
		it.Next()
	}
	return nil
}
