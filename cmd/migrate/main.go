package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

// The tables the retention engine expects after all migrations have run.
// --list checks each one so a deploy can verify the schema without psql.
var retentionTables = []string{
	"communities",
	"members",
	"risk_scores",
	"playbooks",
	"playbook_enrollments",
	"playbook_step_executions",
	"outreach_log",
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if listOnly {
		checkSchema(db)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("read migrations dir %s: %v", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var okCount, errCount int
	for _, f := range files {
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		tx, err := db.Begin()
		if err != nil {
			fmt.Printf("BEGIN ERROR: %v\n", err)
			errCount++
			continue
		}
		if _, err := tx.Exec(content); err != nil {
			tx.Rollback()
			fmt.Printf("ERROR: %v\n", err)
			errCount++
		} else {
			tx.Commit()
			fmt.Println("OK")
			okCount++
		}
	}
	log.Printf("Done: %d OK, %d errors", okCount, errCount)
	if errCount == 0 {
		checkSchema(db)
	}
}

func checkSchema(db *sql.DB) {
	missing := 0
	for _, table := range retentionTables {
		var reg sql.NullString
		if err := db.QueryRow("SELECT to_regclass($1)", "public."+table).Scan(&reg); err != nil {
			log.Fatalf("check %s: %v", table, err)
		}
		if reg.Valid {
			fmt.Printf("  %-26s ok\n", table)
		} else {
			fmt.Printf("  %-26s MISSING\n", table)
			missing++
		}
	}
	if missing > 0 {
		log.Fatalf("Schema incomplete: %d of %d tables missing", missing, len(retentionTables))
	}
	fmt.Printf("Schema complete: %d tables\n", len(retentionTables))
}
