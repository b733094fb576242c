package integration

import (
	"fmt"
	"time"
)

// TestCredentials generates unique test credentials using a timestamp
func TestCredentials(suffix string) (identifier, password string) {
	ts := time.Now().UnixNano()
	identifier = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "TestPassword123!"
	return
}
