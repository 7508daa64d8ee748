//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the loan ledger API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <copy_id> <member1_id> [member2_id ...]
//
// Or use the convenience environment variables:
//
//	COPY_ID=<uuid>  MEMBER_IDS=<uuid1>,<uuid2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines (one per member) all attempting to check out the same copy simultaneously.
//  2. Counts how many got 201 Created and how many got 409 Conflict.
//  3. Exits non-zero unless exactly one checkout succeeded and every other request was refused.
//
// Prerequisites:
//   - Server must be running (`loanledger serve --migrate`).
//   - The copy must be AVAILABLE and the members must exist.

package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type checkoutResult struct {
	MemberID   string
	StatusCode int
	Body       string
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	copyID := os.Getenv("COPY_ID")
	var memberIDs []string
	if env := os.Getenv("MEMBER_IDS"); env != "" {
		memberIDs = strings.Split(env, ",")
	}

	args := os.Args[1:]
	if len(args) >= 1 {
		copyID = args[0]
	}
	if len(args) >= 2 {
		memberIDs = args[1:]
	}

	if copyID == "" {
		log.Fatal("Usage: COPY_ID=<uuid> MEMBER_IDS=<m1,m2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <copy_id> <member1_id> [member2_id ...]")
	}
	if len(memberIDs) == 0 {
		log.Fatal("At least one member ID must be provided via MEMBER_IDS env or positional args")
	}

	fmt.Printf("=== Loan Ledger Concurrency Test ===\n")
	fmt.Printf("Server  : %s\n", serverAddr)
	fmt.Printf("Copy    : %s\n", copyID)
	fmt.Printf("Members : %d\n\n", len(memberIDs))

	results := make([]checkoutResult, len(memberIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, mid := range memberIDs {
		wg.Add(1)
		go func(idx int, memberID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptCheckout(serverAddr, copyID, strings.TrimSpace(memberID))
		}(i, mid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var created, conflicts, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] member=%-38s err=%v\n", r.MemberID, r.Err)
		case r.StatusCode == http.StatusCreated:
			created++
			fmt.Printf("  [LOAN] member=%-38s status=%d\n", r.MemberID, r.StatusCode)
		case r.StatusCode == http.StatusConflict:
			conflicts++
			fmt.Printf("  [BUSY] member=%-38s status=%d\n", r.MemberID, r.StatusCode)
		default:
			failures++
			fmt.Printf("  [FAIL] member=%-38s status=%d body=%s\n", r.MemberID, r.StatusCode, r.Body)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Loans opened : %d\n", created)
	fmt.Printf("Refused      : %d\n", conflicts)
	fmt.Printf("Failures     : %d\n", failures)
	fmt.Printf("Total        : %d\n\n", len(memberIDs))

	if created != 1 || failures > 0 {
		fmt.Println("[FAIL] expected exactly one open loan for the copy")
		os.Exit(1)
	}
	fmt.Println("[OK] exactly one checkout won the race")
}

// attemptCheckout sends POST /copies/{copyID}/checkout for the given member.
func attemptCheckout(serverAddr, copyID, memberID string) checkoutResult {
	url := fmt.Sprintf("%s/copies/%s/checkout", serverAddr, copyID)
	body := fmt.Sprintf(`{"member_id":"%s"}`, memberID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		return checkoutResult{MemberID: memberID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return checkoutResult{MemberID: memberID, StatusCode: resp.StatusCode, Body: string(raw)}
}
