// Package store persists run logs, aggregate statistics and the global
// detection settings.
package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned when a run log does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrContentMismatch is returned by CheckContent when stored text no longer
// matches its recorded hash.
var ErrContentMismatch = errors.New("content hash mismatch")

// DefaultLogLimit is used when RunLogs is called with a non-positive limit.
const DefaultLogLimit = 50

// MaxLogLimit caps a single RunLogs page.
const MaxLogLimit = 1000

// RunLog records one processed input.
type RunLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	// RawInput is empty when raw input retention is disabled.
	RawInput         string             `json:"rawInput"`
	SanitizedInput   string             `json:"sanitizedInput"`
	AgentResponse    string             `json:"agentResponse"`
	PIIDetected      []string           `json:"piiDetected"`
	ProcessingTime   int64              `json:"processingTime"` // milliseconds
	Status           string             `json:"status"`
	ConfidenceScores map[string]float64 `json:"confidenceScores,omitempty"`
	Analysis         json.RawMessage    `json:"analysis,omitempty"`
	InputHash        string             `json:"inputHash"`
	OutputHash       string             `json:"outputHash"`
	Signature        string             `json:"signature,omitempty"`
	Signer           string             `json:"signer,omitempty"`
}

// Stats are the process-wide counters.
type Stats struct {
	QueriesProcessed  int64     `json:"queriesProcessed"`
	PIIRedacted       int64     `json:"piiRedacted"`
	AvgProcessingTime int64     `json:"avgProcessingTime"` // milliseconds
	UpdatedAt         time.Time `json:"updatedAt"`
}

// next folds one run into s. The average is a rounded running mean.
func (s Stats) next(detected int, elapsedMs int64, now time.Time) Stats {
	n := float64(s.QueriesProcessed)
	avg := math.Round((float64(s.AvgProcessingTime)*n + float64(elapsedMs)) / (n + 1))
	return Stats{
		QueriesProcessed:  s.QueriesProcessed + 1,
		PIIRedacted:       s.PIIRedacted + int64(detected),
		AvgProcessingTime: int64(avg),
		UpdatedAt:         now,
	}
}

// Store persists and retrieves run logs, stats and settings.
type Store interface {
	// CreateRunLog assigns an ID and timestamp when missing and stores l.
	CreateRunLog(ctx context.Context, l RunLog) (RunLog, error)
	// RunLogs returns up to limit logs, newest first.
	RunLogs(ctx context.Context, limit int) ([]RunLog, error)
	RunLog(ctx context.Context, id string) (RunLog, error)

	Stats(ctx context.Context) (Stats, error)
	// RecordRun atomically adds one run with detected categories and the
	// given processing time.
	RecordRun(ctx context.Context, detected int, elapsed time.Duration) (Stats, error)

	Settings(ctx context.Context) (PIISettings, error)
	SaveSettings(ctx context.Context, s PIISettings) (PIISettings, error)

	Close() error
}

// NewStore picks a backend from url: empty for in-memory, "bolt://path" (or
// "bbolt://path") for an embedded file, "postgres://..." for PostgreSQL.
func NewStore(ctx context.Context, url string) (Store, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "" || url == "memory://":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(url, "bolt://"):
		return NewBoltStore(strings.TrimPrefix(url, "bolt://"))
	case strings.HasPrefix(url, "bbolt://"):
		return NewBoltStore(strings.TrimPrefix(url, "bbolt://"))
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url)
	}
	return nil, fmt.Errorf("store: unsupported url scheme %q", url)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLogLimit
	}
	if limit > MaxLogLimit {
		return MaxLogLimit
	}
	return limit
}

// ContentHash returns the hex BLAKE2b-256 digest of s.
func ContentHash(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

type receipt struct {
	ID               string             `json:"id"`
	Timestamp        string             `json:"timestamp"`
	InputHash        string             `json:"inputHash"`
	OutputHash       string             `json:"outputHash"`
	ResponseHash     string             `json:"responseHash"`
	PIIDetected      []string           `json:"piiDetected"`
	ConfidenceScores map[string]float64 `json:"confidenceScores"`
	Status           string             `json:"status"`
}

// ReceiptPayload is the canonical byte form of the fields a run log's
// signature covers. The agent response is covered through its hash; map keys
// are encoded in sorted order.
func (l RunLog) ReceiptPayload() []byte {
	detected := l.PIIDetected
	if detected == nil {
		detected = []string{}
	}
	scores := l.ConfidenceScores
	if scores == nil {
		scores = map[string]float64{}
	}
	b, _ := json.Marshal(receipt{
		ID:               l.ID,
		Timestamp:        l.Timestamp.UTC().Format(time.RFC3339Nano),
		InputHash:        l.InputHash,
		OutputHash:       l.OutputHash,
		ResponseHash:     ContentHash(l.AgentResponse),
		PIIDetected:      detected,
		ConfidenceScores: scores,
		Status:           l.Status,
	})
	return b
}

// CheckContent recomputes the hash of the sanitized text, and of the raw
// input when it was kept, and compares them with the recorded hashes.
func (l RunLog) CheckContent() error {
	if ContentHash(l.SanitizedInput) != l.OutputHash {
		return fmt.Errorf("%w: sanitizedInput", ErrContentMismatch)
	}
	if l.RawInput != "" && ContentHash(l.RawInput) != l.InputHash {
		return fmt.Errorf("%w: rawInput", ErrContentMismatch)
	}
	return nil
}
