// Package loader applies transformed rows to target tables. Failures
// are reported as DBUpdateFailed warnings, never fatals: one bad
// table must not stop the rest of the pipeline.
package loader

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
	"github.com/jobcan-tools/jobcan-di/internal/pipeline"
	"github.com/jobcan-tools/jobcan-di/internal/transform"
)

// Load executes a profile's statement once per row inside a single
// transaction: prepare once, exec per row, one commit at the end.
// Returns false plus a DBUpdateFailed warning when anything goes
// wrong; the transaction is rolled back as a whole.
func Load(ctx context.Context, db *sql.DB, profile pipeline.InsertionProfile, rows []transform.Row) (bool, *dierr.Warning) {
	if len(rows) == 0 {
		return true, nil
	}

	warnf := func(err error) *dierr.Warning {
		return dierr.NewWarning(dierr.DBUpdateFailed).
			With("table", profile.TableName()).
			With("error", err.Error())
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, warnf(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, profile.SQL())
	if err != nil {
		return false, warnf(err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range rows {
		args, err := bindArgs(profile, row)
		if err != nil {
			return false, warnf(fmt.Errorf("row %d: %w", i, err))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return false, warnf(fmt.Errorf("row %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, warnf(err)
	}
	committed = true
	return true, nil
}

// bindArgs converts one row into statement arguments: positional rows
// bind in order, named rows through sql.Named so the driver resolves
// :placeholder references.
func bindArgs(profile pipeline.InsertionProfile, row transform.Row) ([]any, error) {
	switch p := profile.(type) {
	case *pipeline.PositionalProfile:
		if row.Values == nil {
			return nil, fmt.Errorf("positional profile got a named row")
		}
		return row.Values, nil
	case *pipeline.NamedProfile:
		if row.Named == nil {
			return nil, fmt.Errorf("named profile got a positional row")
		}
		args := make([]any, 0, len(p.Parameters))
		for _, param := range p.Parameters {
			args = append(args, sql.Named(param.Placeholder, row.Named[param.Placeholder]))
		}
		return args, nil
	}
	return nil, fmt.Errorf("unsupported profile type %T", profile)
}

// Run executes the whole Extract-Transform-Load for one profile: pull
// units from every referenced source, expand, and load. Extraction
// and transform errors surface as warnings too, labeled per source.
func Run(ctx context.Context, db *sql.DB, link *pipeline.DataLink, profile pipeline.InsertionProfile) (bool, *dierr.Warning) {
	var units []pipeline.Unit
	for _, ref := range profile.SourceRefs() {
		for _, src := range resolveRef(link, ref) {
			extracted, err := src.Extract(ctx)
			if err != nil {
				return false, dierr.NewWarning(dierr.DBUpdateFailed).
					With("table", profile.TableName()).
					With("source", src.Name()).
					With("error", err.Error())
			}
			units = append(units, extracted...)
		}
	}

	rows, err := transform.Apply(profile, units)
	if err != nil {
		return false, dierr.NewWarning(dierr.DBUpdateFailed).
			With("table", profile.TableName()).
			With("error", err.Error())
	}
	return Load(ctx, db, profile, rows)
}

// resolveRef expands one source reference: literal names resolve
// directly, regex names match against every registered source.
func resolveRef(link *pipeline.DataLink, ref pipeline.SourceRef) []pipeline.DataSource {
	if !ref.Regex {
		if src, ok := link.Source(ref.Name); ok {
			return []pipeline.DataSource{src}
		}
		return nil
	}
	var out []pipeline.DataSource
	for _, src := range link.Sources() {
		if matchName(ref.Name, src.Name()) {
			out = append(out, src)
		}
	}
	return out
}
