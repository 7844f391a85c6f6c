package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type BattleRecord struct {
	ID     string // battle id
	Winner string
	BattleMetric
}

type TurnRecord struct {
	Battle string // BattleRecord.ID
	TurnMetric
}

type Writer struct {
	baseDir string
}

// NewWriter creates a subfolder of dir named by the current time and writes every file there.
func NewWriter(dir string) (*Writer, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	baseDir := filepath.Join(dir, timestamp)
	err := os.MkdirAll(baseDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &Writer{
		baseDir: baseDir,
	}, nil
}

func (w *Writer) Dir() string {
	return w.baseDir
}

func (w *Writer) WriteBattleRecords(records []BattleRecord) error {
	header := []string{"id", "winner", "start_time", "duration", "turns", "encoded", "failed", "empty_ticks",
		"own_moves", "directed_moves", "replies", "discarded"}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.ID,
			record.Winner,
			record.StartTime.Format(time.RFC3339),
			record.Duration.String(),
			strconv.Itoa(record.Turns),
			strconv.Itoa(record.Encoded),
			strconv.Itoa(record.Failed),
			strconv.Itoa(record.EmptyTicks),
			strconv.Itoa(record.OwnMoves),
			strconv.Itoa(record.DirectedMoves),
			strconv.Itoa(record.Replies),
			strconv.Itoa(record.Discarded),
		})
	}
	return w.write("battle_records.csv", header, rows)
}

func (w *Writer) WriteTurnRecords(records []TurnRecord) error {
	header := []string{"battle", "turn", "state_id", "encoded", "duration"}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.Battle,
			strconv.Itoa(record.Turn),
			strconv.Itoa(record.StateID),
			strconv.FormatBool(record.Encoded),
			record.Duration.String(),
		})
	}
	return w.write("turn_records.csv", header, rows)
}

func (w *Writer) write(name string, header []string, rows [][]string) error {
	path := filepath.Join(w.baseDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s rows: %w", name, err)
	}
	return nil
}
