package repository

import (
	"context"
	"testing"
	"time"

	"swing-trader/internal/domain"
)

func TestInsertRunQueuesHeaderAndItems(t *testing.T) {
	db := &dbRecorder{batchRes: &batchRecorder{}}
	repo := NewRunRepository(db, repoTracer)

	started := time.Date(2026, 8, 10, 13, 0, 0, 0, time.UTC)
	run := domain.BatchRun{
		ID:         "2b9c4f1e-5a77-4a21-9d65-3f08c2d4e9ab",
		Period:     "6mo",
		Interval:   "1wk",
		StartedAt:  started,
		FinishedAt: started.Add(40 * time.Second),
		Requested:  2,
		Succeeded:  1,
		Items: []domain.BatchItem{
			{Ticker: "GOOGL", Status: domain.BatchItemOK},
			{Ticker: "AMZN", Status: domain.BatchItemNoData, Detail: "empty candle response"},
		},
	}
	if err := repo.InsertRun(context.Background(), run); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	// One statement for the run row plus one per item.
	if db.sentBatch == nil || db.sentBatch.Len() != 1+len(run.Items) {
		t.Fatalf("unexpected batch: %+v", db.sentBatch)
	}
	if db.batchRes.execs != 3 {
		t.Fatalf("want 3 batch execs, got %d", db.batchRes.execs)
	}
}

func TestListRecentRunsScansRows(t *testing.T) {
	finished := time.Date(2026, 8, 10, 13, 1, 0, 0, time.UTC)
	db := &dbRecorder{queryRows: [][]any{
		{"2b9c4f1e-5a77-4a21-9d65-3f08c2d4e9ab", "6mo", "1wk", finished.Add(-time.Minute), finished, 5, 4},
	}}
	repo := NewRunRepository(db, repoTracer)

	runs, err := repo.ListRecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Requested != 5 || runs[0].Succeeded != 4 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].FinishedAt != finished {
		t.Fatalf("timestamps not normalized to UTC: %v", runs[0].FinishedAt)
	}
}

func TestGetRunItemsKeepsRequestOrder(t *testing.T) {
	db := &dbRecorder{queryRows: [][]any{
		{"GOOGL", string(domain.BatchItemOK), ""},
		{"AMZN", string(domain.BatchItemError), "provider timeout"},
	}}
	repo := NewRunRepository(db, repoTracer)

	items, err := repo.GetRunItems(context.Background(), "2b9c4f1e-5a77-4a21-9d65-3f08c2d4e9ab")
	if err != nil {
		t.Fatalf("get items: %v", err)
	}
	if len(items) != 2 || items[0].Ticker != "GOOGL" || items[0].Status != domain.BatchItemOK {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[1].Status != domain.BatchItemError || items[1].Detail != "provider timeout" {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
}
