package db

import (
	"context"
	"testing"
)

func TestConnectWithoutDSN(t *testing.T) {
	Pool = nil
	Connect(context.Background(), "")
	if Pool != nil {
		t.Fatal("Pool must stay nil without a DSN")
	}
}
