package journal

import (
	"database/sql"
	"time"
)

// rowScanner is the subset of *sql.Row / *sql.Rows that scanEntry needs.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry        Entry
		stack        string
		entryType    string
		createdAtUTS int64
		status       string
		instruction  sql.NullString
		affectedPath sql.NullString
		previousCrc  sql.NullInt64
		currentCrc   sql.NullInt64
		checkpoint   sql.NullString
	)

	err := row.Scan(
		&entry.ID, &stack, &entryType, &entry.Position, &createdAtUTS, &entry.Description, &status,
		&instruction, &affectedPath, &previousCrc, &currentCrc, &checkpoint,
	)
	if err != nil {
		return Entry{}, err
	}

	entry.Stack = Stack(stack)
	entry.Type = EntryType(entryType)
	entry.Status = Status(status)
	entry.CreatedAt = time.Unix(createdAtUTS, 0).UTC()
	entry.Instruction = instruction.String
	entry.AffectedPath = affectedPath.String
	entry.CheckpointName = checkpoint.String

	if previousCrc.Valid {
		entry.PreviousCrc = uint32(previousCrc.Int64)
		entry.HasPreviousCrc = true
	}

	if currentCrc.Valid {
		entry.CurrentCrc = uint32(currentCrc.Int64)
		entry.HasCurrentCrc = true
	}

	return entry, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableUint32(v uint32, has bool) sql.NullInt64 {
	if !has {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(v), Valid: true}
}
