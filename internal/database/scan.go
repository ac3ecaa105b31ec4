package database

import (
	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/record"
)

// ScanRows reads all rows from the result set into records keyed by column
// name, each value being the driver's Go representation.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows; callers do not need to call Close().
func ScanRows(rows Rows) ([]record.Record, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := make([]record.Record, 0)

	for rows.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}
		result = append(result, record.FromColumns(columns, dest))
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}

	return result, nil
}

// ScanScalar returns the first column of the first row, or nil when the
// result set is empty. Rows is always closed.
func ScanScalar(rows Rows) (any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
		}
		return nil, nil
	}

	dest := make([]any, len(columns))
	destPtrs := make([]any, len(columns))
	for i := range dest {
		destPtrs[i] = &dest[i]
	}
	if err := rows.Scan(destPtrs...); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan single row", err)
	}
	if len(dest) == 0 {
		return nil, nil
	}
	return dest[0], nil
}
