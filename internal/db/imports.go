package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Import is one row of public.latest_successful_imports.
type Import struct {
	DBName     string
	ImportedAt time.Time
}

// LatestImport returns the most recent successful timetable import whose db_name
// matches city. meta must be connected to the cluster's maintenance database.
func LatestImport(ctx context.Context, meta *sql.DB, city string) (Import, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Import{}, errors.New("city is required")
	}
	q := `
SELECT db_name, imported_at
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name sql.NullString
	var at sql.NullTime
	if err := meta.QueryRowContext(ctx, q, city).Scan(&name, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Import{}, fmt.Errorf("no database found for city like %q", city)
		}
		return Import{}, fmt.Errorf("query latest import: %w", err)
	}
	if !name.Valid || name.String == "" {
		return Import{}, fmt.Errorf("empty db_name for city like %q", city)
	}
	return Import{DBName: name.String, ImportedAt: at.Time}, nil
}

// ResolveDSN returns the DSN of the timetable database to load: the latest
// import for city when city is set, otherwise base unchanged.
func ResolveDSN(ctx context.Context, base, city string) (dsn, dbName string, err error) {
	if city == "" {
		return base, DBName(base), nil
	}
	rootDSN, err := WithDBName(base, "postgres")
	if err != nil {
		return "", "", fmt.Errorf("invalid base DSN: %w", err)
	}
	meta, err := Open(rootDSN)
	if err != nil {
		return "", "", fmt.Errorf("open meta db: %w", err)
	}
	defer meta.Close()
	if err := Ping(ctx, meta); err != nil {
		return "", "", fmt.Errorf("ping meta db: %w", err)
	}
	imp, err := LatestImport(ctx, meta, city)
	if err != nil {
		return "", "", err
	}
	dsn, err = WithDBName(base, imp.DBName)
	if err != nil {
		return "", "", fmt.Errorf("compose DSN: %w", err)
	}
	return dsn, imp.DBName, nil
}
