package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
)

var sharedDB *TestDB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Println("skipping integration tests in short mode")
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration database: %v\n", err)
		os.Exit(1)
	}
	sharedDB = db

	code := m.Run()

	_ = db.Teardown(ctx)
	os.Exit(code)
}

// freshDB returns the shared database with every table emptied
func freshDB(t *testing.T) *TestDB {
	t.Helper()
	if err := sharedDB.CleanupTables(context.Background()); err != nil {
		t.Fatalf("cleanup tables: %v", err)
	}
	return sharedDB
}
