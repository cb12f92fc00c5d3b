//go:build integration

package integration

import (
	"bytes"
	"time"

	"github.com/trackzen/trackd/internal/domain"
)

func testEncryptionKey() []byte {
	return bytes.Repeat([]byte{0x7a}, 32)
}

func closedTestActivity(url, title string, minutes int) domain.Activity {
	start := time.Now().Add(-time.Duration(minutes) * time.Minute)
	a := domain.NewActivity(url, title, start)
	a.Close(start.Add(time.Duration(minutes) * time.Minute))
	return a
}
