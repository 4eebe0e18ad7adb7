package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *stubTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type stubBeginner struct {
	txs      []*stubTx
	begun    int
	beginErr error
}

func (b *stubBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	tx := &stubTx{}
	if b.begun < len(b.txs) {
		tx = b.txs[b.begun]
	}
	b.begun++
	return tx, nil
}

func serializationFailure() error {
	return fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40001"})
}

func TestRunInTxCommits(t *testing.T) {
	tx := &stubTx{}
	b := &stubBeginner{txs: []*stubTx{tx}}

	calls := 0
	err := RunInTx(context.Background(), b, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || !tx.committed {
		t.Fatalf("expected one committed attempt, calls=%d committed=%v", calls, tx.committed)
	}
}

func TestRunInTxRetriesTransientFailures(t *testing.T) {
	b := &stubBeginner{}

	calls := 0
	err := RunInTx(context.Background(), b, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		calls++
		if calls == 1 {
			return serializationFailure()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 || b.begun != 2 {
		t.Fatalf("expected a single retry, calls=%d begun=%d", calls, b.begun)
	}
}

func TestRunInTxRetriesCommitConflicts(t *testing.T) {
	first := &stubTx{commitErr: serializationFailure()}
	second := &stubTx{}
	b := &stubBeginner{txs: []*stubTx{first, second}}

	if err := RunInTx(context.Background(), b, pgx.TxOptions{}, func(context.Context, pgx.Tx) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.rolledBack || !second.committed {
		t.Fatalf("expected first attempt rolled back and second committed")
	}
}

func TestRunInTxStopsOnPermanentErrors(t *testing.T) {
	tx := &stubTx{}
	b := &stubBeginner{txs: []*stubTx{tx}}
	permanent := errors.New("constraint violated")

	err := RunInTx(context.Background(), b, pgx.TxOptions{}, func(context.Context, pgx.Tx) error { return permanent })
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if b.begun != 1 || !tx.rolledBack || tx.committed {
		t.Fatalf("expected one rolled back attempt, begun=%d", b.begun)
	}
}

func TestRunInTxGivesUpAfterMaxRetries(t *testing.T) {
	b := &stubBeginner{}

	err := RunInTx(context.Background(), b, pgx.TxOptions{}, func(context.Context, pgx.Tx) error { return serializationFailure() })
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "40001" {
		t.Fatalf("expected last transient error to be wrapped, got %v", err)
	}
	if b.begun != txMaxRetries {
		t.Fatalf("expected %d attempts, got %d", txMaxRetries, b.begun)
	}
}

func TestRunInTxBeginFailure(t *testing.T) {
	b := &stubBeginner{beginErr: errors.New("pool closed")}
	if err := RunInTx(context.Background(), b, pgx.TxOptions{}, func(context.Context, pgx.Tx) error { return nil }); err == nil {
		t.Fatal("expected begin error")
	}
}

func TestRunInTxHonoursCancellationBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &stubBeginner{}

	err := RunInTx(ctx, b, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		cancel()
		return serializationFailure()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if b.begun != 1 {
		t.Fatalf("expected no attempt after cancellation, got %d", b.begun)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization", err: serializationFailure(), want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "lock not available", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: true},
		{name: "tx closed", err: pgx.ErrTxClosed, want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldRetry(tc.err); got != tc.want {
				t.Fatalf("ShouldRetry(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
