// redrive returns dead-lettered jobs to the generation queue for a
// fresh round of attempts. Records can be exported as JSON files before
// they leave the dead letter table.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/sqlinline"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/storage"
)

func main() {
	_ = godotenv.Load()

	var (
		idFlag     string
		allFlag    bool
		limitFlag  int
		exportFlag string
	)
	flag.StringVar(&idFlag, "id", "", "dead letter ID to redrive (UUID)")
	flag.BoolVar(&allFlag, "all", false, "redrive the most recent dead letters up to -limit")
	flag.IntVar(&limitFlag, "limit", 10, "maximum records to redrive with -all")
	flag.StringVar(&exportFlag, "export", "", "directory to export each record to before redriving")
	flag.Parse()

	recordID := strings.TrimSpace(idFlag)
	if recordID == "" && !allFlag {
		exitWithError(errors.New("either -id or -all must be provided"))
	}
	if recordID != "" && allFlag {
		exitWithError(errors.New("-id and -all are mutually exclusive"))
	}
	if allFlag && limitFlag < 1 {
		exitWithError(errors.New("-limit must be at least 1"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "redrive")
	runner := infra.NewSQLRunner(pool, logger)

	var exports *storage.ExportDir
	if dir := strings.TrimSpace(exportFlag); dir != "" {
		exports, err = storage.NewExportDir(dir)
		if err != nil {
			exitWithError(err)
		}
	}

	records, err := loadRecords(ctx, runner, recordID, limitFlag)
	if err != nil {
		exitWithError(err)
	}
	if len(records) == 0 {
		fmt.Println("no dead letters to redrive")
		return
	}

	maxAttempts := defaultMaxAttempts()
	var done int
	for _, rec := range records {
		if err := redriveRecord(runner, exports, rec, maxAttempts); err != nil {
			fmt.Fprintf(os.Stderr, "redrive %s: %v\n", rec.id, err)
			continue
		}
		done++
	}
	fmt.Printf("redrove %d of %d dead letters\n", done, len(records))
	if done != len(records) {
		os.Exit(1)
	}
}

// record carries a dead-letter row with the prompt still in its stored
// JSON form, so the replacement job gets the exact bytes back.
type record struct {
	id            string
	jobID         string
	userID        string
	cacheKey      string
	promptJSON    []byte
	failureReason string
	attemptsMade  int
	attemptsJSON  []byte
	failedAt      time.Time
}

func loadRecords(ctx context.Context, runner *infra.SQLRunner, id string, limit int) ([]record, error) {
	if id != "" {
		row := runner.QueryRow(ctx, sqlinline.QGetDeadLetter, id)
		rec, err := scanRecord(row.Scan)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("dead letter %s not found", id)
			}
			return nil, fmt.Errorf("failed to load dead letter: %w", err)
		}
		return []record{rec}, nil
	}

	rows, err := runner.Query(ctx, sqlinline.QListDeadLetters, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()
	var records []record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(scan func(...any) error) (record, error) {
	var rec record
	err := scan(&rec.id, &rec.jobID, &rec.userID, &rec.cacheKey, &rec.promptJSON,
		&rec.failureReason, &rec.attemptsMade, &rec.attemptsJSON, &rec.failedAt)
	return rec, err
}

// redriveRecord exports (when asked), enqueues a fresh job for the
// record's prompt, then removes the dead letter. Not transactional: a
// failure between the two statements leaves both the new job and the
// record, which a re-run resolves.
func redriveRecord(runner *infra.SQLRunner, exports *storage.ExportDir, rec record, maxAttempts int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if exports != nil {
		dl, err := rec.toDomain()
		if err != nil {
			return err
		}
		path, err := exports.ExportDeadLetter(ctx, dl)
		if err != nil {
			return err
		}
		fmt.Printf("exported %s to %s\n", rec.id, path)
	}

	newJobID := uuid.NewString()
	if _, err := runner.Exec(ctx, sqlinline.QEnqueueJob, newJobID, rec.userID, rec.cacheKey, rec.promptJSON, maxAttempts); err != nil {
		return fmt.Errorf("failed to enqueue replacement job: %w", err)
	}
	if _, err := runner.Exec(ctx, sqlinline.QDeleteDeadLetter, rec.id); err != nil {
		return fmt.Errorf("failed to remove dead letter: %w", err)
	}

	fmt.Printf("dead letter %s redriven as job %s (user %s)\n", rec.id, newJobID, rec.userID)
	return nil
}

func (r record) toDomain() (*domain.DeadLetterJob, error) {
	dl := &domain.DeadLetterJob{
		ID:            r.id,
		JobID:         r.jobID,
		UserID:        r.userID,
		CacheKey:      r.cacheKey,
		FailureReason: r.failureReason,
		AttemptsMade:  r.attemptsMade,
		FailedAt:      r.failedAt,
	}
	if len(r.promptJSON) > 0 {
		if err := json.Unmarshal(r.promptJSON, &dl.Prompt); err != nil {
			return nil, fmt.Errorf("failed to decode prompt: %w", err)
		}
	}
	if len(r.attemptsJSON) > 0 {
		if err := json.Unmarshal(r.attemptsJSON, &dl.Attempts); err != nil {
			return nil, fmt.Errorf("failed to decode attempt history: %w", err)
		}
	}
	return dl, nil
}

// defaultMaxAttempts mirrors the submission path: MAX_RETRIES retries
// on top of the first attempt.
func defaultMaxAttempts() int {
	retries := 3
	if v := strings.TrimSpace(os.Getenv("MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			retries = n
		}
	}
	return retries + 1
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
