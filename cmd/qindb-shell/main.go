// Command qindb-shell is an interactive client for qindb-server,
// issuing JSON requests against its operations surface. Grounded on
// src/cli/main.go's readline loop and HTTP dispatch (executeSQL,
// displayQueryResults), generalized from a single SQL statement per
// line to a small line-oriented command language over CreateTable,
// InsertTuple, ScanTable, UpdateTuple, DeleteTuple, Begin/Commit/Abort,
// Vacuum and Analyze, since this core has no SQL surface to dispatch
// (§1).
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
)

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "qindb-server URL")
	flag.Parse()

	fmt.Println("qindb shell")
	fmt.Printf("connected to: %s\n", *serverURL)
	fmt.Println("commands: createtable, createindex, insert, scan, update, delete, begin, commit, abort, vacuum, analyze, help, exit")
	fmt.Println()

	rl, err := readline.New("qindb> ")
	if err != nil {
		fmt.Printf("error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	client := &http.Client{}

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			fmt.Printf("error reading input: %v\n", err)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if line == "help" {
			printHelp()
			continue
		}

		if err := dispatch(client, *serverURL, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		fmt.Println()
	}

	fmt.Println("goodbye!")
}

func printHelp() {
	fmt.Println(`commands:
  createtable <table> <col:TYPE[,col:TYPE...]>
  createindex <table> <index> <column> [unique]
  begin
  commit <txnId>
  abort <txnId>
  insert <table> <txnId> <v1,v2,...>
  scan <table> [txnId]
  update <table> <rowId> <txnId> <v1,v2,...>
  delete <table> <rowId> <txnId>
  vacuum [table]
  analyze [table]`)
}

func dispatch(client *http.Client, serverURL, line string) error {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "createtable":
		return createTable(client, serverURL, args)
	case "createindex":
		return createIndex(client, serverURL, args)
	case "begin":
		return beginTxn(client, serverURL)
	case "commit":
		return txnAction(client, serverURL, args, "commit")
	case "abort":
		return txnAction(client, serverURL, args, "abort")
	case "insert":
		return insertRow(client, serverURL, args)
	case "scan":
		return scanTable(client, serverURL, args)
	case "update":
		return updateRow(client, serverURL, args)
	case "delete":
		return deleteRow(client, serverURL, args)
	case "vacuum":
		return maintenance(client, serverURL, args, "/vacuum")
	case "analyze":
		return maintenance(client, serverURL, args, "/analyze")
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func createTable(client *http.Client, serverURL string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: createtable <table> <col:TYPE[,col:TYPE...]>")
	}
	var cols []map[string]any
	for _, spec := range strings.Split(args[1], ",") {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bad column spec %q, expected name:TYPE", spec)
		}
		cols = append(cols, map[string]any{"name": parts[0], "type": parts[1]})
	}
	body := map[string]any{"name": args[0], "columns": cols}
	return postJSON(client, serverURL+"/tables", body, nil)
}

func createIndex(client *http.Client, serverURL string, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: createindex <table> <index> <column> [unique]")
	}
	unique := len(args) > 3 && args[3] == "unique"
	body := map[string]any{"name": args[1], "column": args[2], "unique": unique}
	return postJSON(client, serverURL+"/tables/"+args[0]+"/indexes", body, nil)
}

func beginTxn(client *http.Client, serverURL string) error {
	var resp struct {
		TxnID uint64 `json:"txnId"`
	}
	if err := postJSON(client, serverURL+"/txn", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("txn %d started\n", resp.TxnID)
	return nil
}

func txnAction(client *http.Client, serverURL string, args []string, action string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <txnId>", action)
	}
	url := fmt.Sprintf("%s/txn/%s/%s", serverURL, args[0], action)
	return postJSON(client, url, nil, nil)
}

func insertRow(client *http.Client, serverURL string, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: insert <table> <txnId> <v1,v2,...>")
	}
	txnID, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad txn id: %w", err)
	}
	body := map[string]any{"txnId": txnID, "values": parseValues(args[2])}
	var resp struct {
		RowID uint64 `json:"rowId"`
	}
	if err := postJSON(client, serverURL+"/tables/"+args[0]+"/rows", body, &resp); err != nil {
		return err
	}
	fmt.Printf("inserted row %d\n", resp.RowID)
	return nil
}

func scanTable(client *http.Client, serverURL string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: scan <table> [txnId]")
	}
	url := serverURL + "/tables/" + args[0] + "/rows"
	if len(args) > 1 {
		url += "?txn=" + args[1]
	}
	var rows []struct {
		RowID  uint64 `json:"rowId"`
		Values []any  `json:"values"`
	}
	if err := getJSON(client, url, &rows); err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Printf("%d: %v\n", row.RowID, row.Values)
	}
	fmt.Printf("%d rows\n", len(rows))
	return nil
}

func updateRow(client *http.Client, serverURL string, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: update <table> <rowId> <txnId> <v1,v2,...>")
	}
	txnID, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("bad txn id: %w", err)
	}
	body := map[string]any{"txnId": txnID, "values": parseValues(args[3])}
	url := serverURL + "/tables/" + args[0] + "/rows/" + args[1]
	req, err := http.NewRequest(http.MethodPut, url, bodyReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(client, req, nil)
}

func deleteRow(client *http.Client, serverURL string, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: delete <table> <rowId> <txnId>")
	}
	url := fmt.Sprintf("%s/tables/%s/rows/%s?txn=%s", serverURL, args[0], args[1], args[2])
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	return doRequest(client, req, nil)
}

func maintenance(client *http.Client, serverURL string, args []string, path string) error {
	url := serverURL + path
	if len(args) > 0 {
		url += "?table=" + args[0]
	}
	var result map[string]any
	if err := postJSON(client, url, nil, &result); err != nil {
		return err
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}

// parseValues splits a comma-separated value list, attempting a
// numeric parse for each field before falling back to string.
func parseValues(raw string) []any {
	parts := strings.Split(raw, ",")
	out := make([]any, len(parts))
	for i, p := range parts {
		if p == "null" {
			out[i] = nil
			continue
		}
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out[i] = n
			continue
		}
		if f, err := strconv.ParseFloat(p, 64); err == nil {
			out[i] = f
			continue
		}
		if p == "true" || p == "false" {
			out[i] = p == "true"
			continue
		}
		out[i] = p
	}
	return out
}

func bodyReader(body any) io.Reader {
	if body == nil {
		return nil
	}
	data, _ := json.Marshal(body)
	return bytes.NewReader(data)
}

func postJSON(client *http.Client, url string, body, out any) error {
	req, err := http.NewRequest(http.MethodPost, url, bodyReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(client, req, out)
}

func getJSON(client *http.Client, url string, out any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return doRequest(client, req, out)
}

func doRequest(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errResp errorResponse
		if err := json.Unmarshal(data, &errResp); err != nil {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
		}
		return fmt.Errorf("%s: %s", errResp.Error.Code, errResp.Error.Message)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
