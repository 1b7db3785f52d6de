//go:build integration

package integration

import (
	"fmt"
	"time"
)

// TestAccount generates unique account credentials using timestamp
func TestAccount(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "Vivid-Orbit-Canyon-42!"
	return
}
