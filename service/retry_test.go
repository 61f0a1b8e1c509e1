package service

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestRetriable(t *testing.T) {
	i := 0
	ctx := context.Background()
	tim := time.Now()
	err := Retriable(ctx, func() error {
		i++
		return MakeTemporary(fmt.Errorf("%d", i))
	}, time.Microsecond, 3)

	if time.Since(tim) < 3*time.Microsecond {
		t.Errorf("err: excepted at least 3µs got %v", time.Since(tim))
	}
	if i != 3 {
		t.Errorf("err: excepted 3 attempts got %d", i)
	}
	if err == nil {
		t.Fatal("err: excepted an error got nil")
	}
	if !Temporary(err) {
		t.Errorf("err: excepted a temporary error got %v", err)
	}
}

func TestRetriablePermanent(t *testing.T) {
	i := 0
	err := Retriable(context.Background(), func() error {
		i++
		return fmt.Errorf("permanent")
	}, time.Microsecond, 3)

	if i != 1 {
		t.Errorf("err: excepted 1 attempt got %d", i)
	}
	if err == nil || err.Error() != "permanent" {
		t.Errorf("err: excepted permanent got %v", err)
	}
}

func TestRetriableSuccess(t *testing.T) {
	i := 0
	err := Retriable(context.Background(), func() error {
		i++
		if i < 2 {
			return MakeTemporary(fmt.Errorf("%d", i))
		}
		return nil
	}, time.Microsecond, 3)

	if err != nil {
		t.Errorf("err: excepted nil got %v", err)
	}
	if i != 2 {
		t.Errorf("err: excepted 2 attempts got %d", i)
	}
}
