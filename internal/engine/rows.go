package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"roster-backend/internal/instrument"
	"roster-backend/internal/logger"
	"roster-backend/internal/metadata"
	"roster-backend/internal/storage"
	"roster-backend/internal/store"
)

const (
	usernameColumn         = "username"
	guardianUsernameColumn = "guardian_username"
	guardianNameColumn     = "guardian_name"
	nameColumn             = "name"
)

// RowEngine reads and writes rows of provisioned entity tables.
type RowEngine struct {
	store     *store.Store
	registry  *store.FieldTypeRegistry
	globalIDs store.GlobalIDAllocator
	localIDs  store.LocalIDAllocator
	files     storage.FileStorage
	creds     *CredentialIssuer
	events    instrument.Recorder
	log       zerolog.Logger
}

func NewRowEngine(s *store.Store, reg *store.FieldTypeRegistry, files storage.FileStorage, creds *CredentialIssuer, events instrument.Recorder) *RowEngine {
	if events == nil {
		events = instrument.NoopRecorder{}
	}
	return &RowEngine{
		store:     s,
		registry:  reg,
		globalIDs: store.CounterAllocator{},
		localIDs:  store.MaxPlusOneAllocator{},
		files:     files,
		creds:     creds,
		events:    events,
		log:       logger.With("rows"),
	}
}

// InsertResult is returned by InsertRow. Credentials holds the logins that
// were stored; Warnings lists secondary effects that failed after commit.
type InsertResult struct {
	GlobalID    int64                 `json:"globalId"`
	LocalID     int64                 `json:"localId"`
	Credentials []GeneratedCredential `json:"generatedCredentials"`
	Warnings    []string              `json:"warnings,omitempty"`
}

type DeleteResult struct {
	Key      RowKey   `json:"key"`
	Warnings []string `json:"warnings,omitempty"`
}

type BulkRowResult struct {
	Row         int                   `json:"row"`
	GlobalID    int64                 `json:"globalId"`
	LocalID     int64                 `json:"localId"`
	Credentials []GeneratedCredential `json:"generatedCredentials"`
}

type BulkError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type BulkResult struct {
	InsertedCount int             `json:"insertedCount"`
	Rows          []BulkRowResult `json:"rows"`
	Errors        []BulkError     `json:"errors"`
}

type RowPage struct {
	Rows    []map[string]any `json:"rows"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
	Total   int64            `json:"total"`
}

// InsertRow validates, coerces and inserts one row, allocating its ids in
// the insert's transaction. Logins are stored after commit, best-effort.
func (e *RowEngine) InsertRow(ctx context.Context, ref TableRef, values map[string]any, files map[string]FilePart) (*InsertResult, error) {
	cols, err := e.loadColumns(ctx, e.store.Pool, ref)
	if err != nil {
		return nil, err
	}
	assigns, details := prepareValues(cols, values, files, modeInsert)
	if len(details) > 0 {
		return nil, ValidationError(details)
	}

	res, err := e.insertPrepared(ctx, ref, cols, assigns, files)
	recordID := ""
	if res != nil {
		recordID = strconv.FormatInt(res.GlobalID, 10)
	}
	e.record(ctx, "row.insert", ref, recordID, err, nil)
	return res, err
}

func (e *RowEngine) insertPrepared(ctx context.Context, ref TableRef, cols []Column, assigns []assignment, files map[string]FilePart) (*InsertResult, error) {
	uploads, paths, err := e.saveFiles(ctx, ref, cols, files)
	if err != nil {
		return nil, err
	}
	assigns = append(assigns, uploads...)

	res := &InsertResult{Credentials: []GeneratedCredential{}}
	pending, credAssigns, warnings := e.newCredentials(ctx, ref, cols, assigns, map[string]bool{})
	res.Warnings = append(res.Warnings, warnings...)

	err = e.store.WithTx(ctx, func(tx pgx.Tx) error {
		gid, lid, err := e.insertTx(ctx, tx, ref, append(assigns, credAssigns...))
		res.GlobalID, res.LocalID = gid, lid
		return err
	})
	if err != nil {
		e.removeFiles(ctx, paths)
		return nil, err
	}

	stored, warnings := e.storeCredentials(ctx, ref, res.GlobalID, pending)
	res.Credentials = append(res.Credentials, stored...)
	res.Warnings = append(res.Warnings, warnings...)
	return res, nil
}

// insertTx allocates both ids and inserts one row on q.
func (e *RowEngine) insertTx(ctx context.Context, q store.Querier, ref TableRef, assigns []assignment) (int64, int64, error) {
	global, local := ref.Domain.IDColumns()
	gid, err := e.globalIDs.NextGlobalID(ctx, q, ref.Domain.CounterName())
	if err != nil {
		return 0, 0, err
	}
	lid, err := e.localIDs.NextLocalID(ctx, q, ref.Namespace, ref.Table, local)
	if err != nil {
		return 0, 0, err
	}

	row := make([]assignment, 0, len(assigns)+2)
	row = append(row, assignment{column: global, value: gid}, assignment{column: local, value: lid})
	row = append(row, assigns...)

	qr := BuildInsertSQL(ref, row)
	if _, err := store.Exec(ctx, q, qr.SQL, qr.Params...); err != nil {
		return 0, 0, fmt.Errorf("insert into %s.%s: %w", ref.Namespace, ref.Table, err)
	}
	return gid, lid, nil
}

// newCredentials picks usernames for the logins a new row gets, skipping
// those in reserved and adding its own. Failures are warnings: the row is
// still inserted, without a login.
func (e *RowEngine) newCredentials(ctx context.Context, ref TableRef, cols []Column, assigns []assignment, reserved map[string]bool) ([]GeneratedCredential, []assignment, []string) {
	name := assignedString(assigns, nameColumn)
	if name == "" || e.creds == nil {
		return nil, nil, nil
	}

	type login struct {
		kind   store.CredentialKind
		column string
		name   string
	}
	logins := []login{{store.CredentialPrimary, usernameColumn, name}}
	if ref.Domain.Guardian {
		guardian := assignedString(assigns, guardianNameColumn)
		if guardian == "" {
			guardian = name
		}
		logins = append(logins, login{store.CredentialGuardian, guardianUsernameColumn, guardian})
	}

	var creds []GeneratedCredential
	var out []assignment
	var warnings []string
	for _, l := range logins {
		col := findColumn(cols, l.column)
		if col == nil {
			continue
		}
		username, err := e.creds.pickUsername(ctx, e.store.Pool, l.kind, l.name, reserved)
		if err == nil {
			var cred GeneratedCredential
			cred, err = e.creds.Issue(l.kind, username)
			if err == nil {
				reserved[username] = true
				creds = append(creds, cred)
				out = append(out, assignment{column: col.ident, value: username})
				continue
			}
		}
		e.log.Warn().Err(err).Str("kind", string(l.kind)).Msg("could not generate login")
		warnings = append(warnings, fmt.Sprintf("%s login not generated: %v", l.kind, err))
	}
	return creds, out, warnings
}

// storeCredentials hashes and stores logins of a committed row. Only stored
// logins are returned to the caller.
func (e *RowEngine) storeCredentials(ctx context.Context, ref TableRef, globalID int64, creds []GeneratedCredential) ([]GeneratedCredential, []string) {
	var stored []GeneratedCredential
	var warnings []string
	for _, c := range creds {
		err := e.saveCredential(ctx, e.store.Pool, ref, globalID, c)
		if err != nil {
			e.log.Warn().Err(err).Str("username", c.Username).Int64("global_id", globalID).Msg("could not store login")
			warnings = append(warnings, fmt.Sprintf("%s login %s not stored: %s", c.Kind, c.Username, store.ErrorDetail(err)))
			continue
		}
		stored = append(stored, c)
	}
	return stored, warnings
}

func (e *RowEngine) saveCredential(ctx context.Context, q store.Querier, ref TableRef, globalID int64, c GeneratedCredential) error {
	hash, err := e.creds.Hash(c)
	if err != nil {
		return err
	}
	return store.SaveCredential(ctx, q, store.Credential{
		Username:     c.Username,
		PasswordHash: hash,
		Domain:       ref.Domain.Name,
		Namespace:    ref.Namespace,
		Table:        ref.Table,
		GlobalID:     globalID,
		Kind:         c.Kind,
	})
}

// saveFiles stores the uploaded file of every upload column that has one.
func (e *RowEngine) saveFiles(ctx context.Context, ref TableRef, cols []Column, files map[string]FilePart) ([]assignment, []string, error) {
	if len(files) == 0 {
		return nil, nil, nil
	}
	parts := lowerKeys(files)
	dir := ref.Namespace.String() + "/" + ref.Table.String()

	var out []assignment
	var paths []string
	for _, col := range cols {
		if col.Type != metadata.TypeUpload || col.System {
			continue
		}
		part, ok := parts[col.Name]
		if !ok {
			continue
		}
		path, err := e.files.Save(ctx, dir, part.Filename, part.Content)
		if err != nil {
			e.removeFiles(ctx, paths)
			return nil, nil, fmt.Errorf("save %s: %w", col.Name, err)
		}
		paths = append(paths, path)
		out = append(out, assignment{column: col.ident, value: path, upload: true})
	}
	return out, paths, nil
}

// removeFiles deletes stored files best-effort and returns a warning per failure.
func (e *RowEngine) removeFiles(ctx context.Context, paths []string) []string {
	var warnings []string
	for _, p := range paths {
		if err := e.files.Delete(ctx, p); err != nil {
			e.log.Warn().Err(err).Str("path", p).Msg("could not remove file")
			warnings = append(warnings, fmt.Sprintf("file %s not removed: %v", p, err))
		}
	}
	return warnings
}

func rowNotFound(ref TableRef, key RowKey) error {
	return fmt.Errorf("%w: %s %s in %s.%s", store.ErrNotFound, ref.Domain.Entity, key, ref.Namespace, ref.Table)
}

// UpdateRow applies a partial update. A replaced or cleared upload has its
// old file removed once the update is committed.
func (e *RowEngine) UpdateRow(ctx context.Context, ref TableRef, key RowKey, patch map[string]any, files map[string]FilePart) (map[string]any, error) {
	cols, err := e.loadColumns(ctx, e.store.Pool, ref)
	if err != nil {
		return nil, err
	}
	assigns, details := prepareValues(cols, patch, files, modeUpdate)
	if len(details) > 0 {
		return nil, ValidationError(details)
	}

	uploads, newPaths, err := e.saveFiles(ctx, ref, cols, files)
	if err != nil {
		return nil, err
	}
	assigns = append(assigns, uploads...)
	if len(assigns) == 0 {
		return nil, InvalidPayloadError("No updatable fields supplied")
	}

	var row map[string]any
	var oldPaths []string
	err = e.store.WithTx(ctx, func(tx pgx.Tx) error {
		sel := BuildSelectOneSQL(ref, key, true)
		current, err := store.QueryRow(ctx, tx, sel.SQL, sel.Params...)
		if errors.Is(err, store.ErrNotFound) {
			return rowNotFound(ref, key)
		}
		if err != nil {
			return err
		}
		for _, a := range assigns {
			if !a.upload {
				continue
			}
			if old, _ := current[a.column.String()].(string); old != "" && old != a.value {
				oldPaths = append(oldPaths, old)
			}
		}

		upd := BuildUpdateSQL(ref, key, assigns)
		row, err = store.QueryRow(ctx, tx, upd.SQL, upd.Params...)
		return err
	})
	if err != nil {
		e.removeFiles(ctx, newPaths)
		e.record(ctx, "row.update", ref, key.String(), err, nil)
		return nil, err
	}

	e.removeFiles(ctx, oldPaths)
	e.record(ctx, "row.update", ref, key.String(), nil, map[string]any{"fields": len(assigns)})
	return decodeRow(cols, row), nil
}

// DeleteRow removes a row with its logins, then its files. Local ids of
// other rows are left untouched.
func (e *RowEngine) DeleteRow(ctx context.Context, ref TableRef, key RowKey) (*DeleteResult, error) {
	cols, err := e.loadColumns(ctx, e.store.Pool, ref)
	if err != nil {
		return nil, err
	}
	var uploadCols []metadata.Identifier
	for _, c := range cols {
		if c.Type == metadata.TypeUpload {
			uploadCols = append(uploadCols, c.ident)
		}
	}

	var paths []string
	err = e.store.WithTx(ctx, func(tx pgx.Tx) error {
		qr := BuildDeleteSQL(ref, key, uploadCols)
		rows, err := store.QueryRows(ctx, tx, qr.SQL, qr.Params...)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return rowNotFound(ref, key)
		}
		for _, c := range uploadCols {
			if p, _ := rows[0][c.String()].(string); p != "" {
				paths = append(paths, p)
			}
		}
		return store.DeleteCredentials(ctx, tx, ref.Domain.Name, key.GlobalID)
	})
	e.record(ctx, "row.delete", ref, key.String(), err, nil)
	if err != nil {
		return nil, err
	}

	return &DeleteResult{Key: key, Warnings: e.removeFiles(ctx, paths)}, nil
}

// BulkInsert validates the whole batch first; any unknown column, missing
// required value or bad value rejects it with nothing written. The rows are
// then inserted in one transaction, each in its own savepoint, so a failing
// row is reported without undoing the others and the batch becomes visible
// at once. Logins are stored after commit.
func (e *RowEngine) BulkInsert(ctx context.Context, ref TableRef, rows []map[string]any) (*BulkResult, error) {
	if len(rows) == 0 {
		return nil, InvalidPayloadError("rows must not be empty")
	}
	cols, err := e.loadColumns(ctx, e.store.Pool, ref)
	if err != nil {
		return nil, err
	}
	prepared, details := validateBatch(cols, rows)
	if len(details) > 0 {
		return nil, ValidationError(details)
	}

	type pendingRow struct {
		BulkRowResult
		creds []GeneratedCredential
	}
	var inserted []pendingRow
	var rowErrors []BulkError
	reserved := map[string]bool{}

	err = e.store.WithTx(ctx, func(tx pgx.Tx) error {
		for i, assigns := range prepared {
			creds, credAssigns, warnings := e.newCredentials(ctx, ref, cols, assigns, reserved)
			for _, w := range warnings {
				rowErrors = append(rowErrors, BulkError{Row: i, Message: w})
			}

			var gid, lid int64
			err := store.WithSavepoint(ctx, tx, func(sp pgx.Tx) error {
				var err error
				gid, lid, err = e.insertTx(ctx, sp, ref, append(assigns, credAssigns...))
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.log.Warn().Err(err).Int("row", i).Msg("bulk row not inserted")
				rowErrors = append(rowErrors, BulkError{Row: i, Message: ToAppError(err).Error()})
				continue
			}
			inserted = append(inserted, pendingRow{
				BulkRowResult: BulkRowResult{Row: i, GlobalID: gid, LocalID: lid},
				creds:         creds,
			})
		}
		return nil
	})
	if err != nil {
		e.record(ctx, "row.bulk_insert", ref, "", err, map[string]any{"submitted": len(rows)})
		return nil, err
	}

	result := &BulkResult{Rows: []BulkRowResult{}, Errors: []BulkError{}}
	for _, p := range inserted {
		stored, warnings := e.storeCredentials(ctx, ref, p.GlobalID, p.creds)
		p.Credentials = append([]GeneratedCredential{}, stored...)
		for _, w := range warnings {
			rowErrors = append(rowErrors, BulkError{Row: p.Row, Message: w})
		}
		result.Rows = append(result.Rows, p.BulkRowResult)
	}
	result.InsertedCount = len(inserted)
	result.Errors = append(result.Errors, rowErrors...)
	sort.SliceStable(result.Errors, func(a, b int) bool { return result.Errors[a].Row < result.Errors[b].Row })

	e.record(ctx, "row.bulk_insert", ref, "", nil, map[string]any{
		"submitted": len(rows),
		"inserted":  result.InsertedCount,
		"errors":    len(result.Errors),
	})
	return result, nil
}

// ListRows returns one page of rows ordered by local id.
func (e *RowEngine) ListRows(ctx context.Context, ref TableRef, page Page) (*RowPage, error) {
	cols, err := e.loadColumns(ctx, e.store.Pool, ref)
	if err != nil {
		return nil, err
	}

	qr := BuildSelectSQL(ref, page)
	rows, err := store.QueryRows(ctx, e.store.Pool, qr.SQL, qr.Params...)
	if err != nil {
		return nil, err
	}
	cr := BuildCountSQL(ref)
	countRow, err := store.QueryRow(ctx, e.store.Pool, cr.SQL, cr.Params...)
	if err != nil {
		return nil, err
	}

	out := &RowPage{Rows: make([]map[string]any, 0, len(rows)), Page: page.Page, PerPage: page.PerPage}
	out.Total, _ = countRow["count"].(int64)
	for _, r := range rows {
		out.Rows = append(out.Rows, decodeRow(cols, r))
	}
	return out, nil
}

// GetRow returns one row by key.
func (e *RowEngine) GetRow(ctx context.Context, ref TableRef, key RowKey) (map[string]any, error) {
	cols, err := e.loadColumns(ctx, e.store.Pool, ref)
	if err != nil {
		return nil, err
	}
	qr := BuildSelectOneSQL(ref, key, false)
	row, err := store.QueryRow(ctx, e.store.Pool, qr.SQL, qr.Params...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, rowNotFound(ref, key)
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(cols, row), nil
}

// ResetCredentials issues a new password for one login of a row, creating
// the username first when the row never got one.
func (e *RowEngine) ResetCredentials(ctx context.Context, ref TableRef, key RowKey, kind store.CredentialKind) (*GeneratedCredential, error) {
	column := usernameColumn
	switch kind {
	case store.CredentialPrimary:
	case store.CredentialGuardian:
		if !ref.Domain.Guardian {
			return nil, InvalidPayloadError(fmt.Sprintf("%s rows have no guardian login", ref.Domain.Entity))
		}
		column = guardianUsernameColumn
	default:
		return nil, InvalidPayloadError(fmt.Sprintf("unknown login kind %q", kind))
	}

	cols, err := e.loadColumns(ctx, e.store.Pool, ref)
	if err != nil {
		return nil, err
	}
	col := findColumn(cols, column)
	if col == nil {
		return nil, InvalidPayloadError(fmt.Sprintf("table %s has no %s column", ref.Table, column))
	}

	qr := BuildSelectOneSQL(ref, key, false)
	current, err := store.QueryRow(ctx, e.store.Pool, qr.SQL, qr.Params...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, rowNotFound(ref, key)
	}
	if err != nil {
		return nil, err
	}

	username, _ := current[column].(string)
	newUsername := username == ""
	if newUsername {
		name, _ := current[nameColumn].(string)
		if kind == store.CredentialGuardian {
			if g, _ := current[guardianNameColumn].(string); g != "" {
				name = g
			}
		}
		username, err = e.creds.pickUsername(ctx, e.store.Pool, kind, name, nil)
		if err != nil {
			return nil, err
		}
	}

	cred, err := e.creds.Issue(kind, username)
	if err != nil {
		return nil, err
	}
	err = e.store.WithTx(ctx, func(tx pgx.Tx) error {
		if newUsername {
			upd := BuildUpdateSQL(ref, key, []assignment{{column: col.ident, value: username}})
			if _, err := store.Exec(ctx, tx, upd.SQL, upd.Params...); err != nil {
				return err
			}
		}
		return e.saveCredential(ctx, tx, ref, key.GlobalID, cred)
	})
	e.record(ctx, "credentials.reset", ref, key.String(), err, map[string]any{"kind": string(kind)})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (e *RowEngine) record(ctx context.Context, action string, ref TableRef, recordID string, err error, meta map[string]any) {
	ev := instrument.Event{
		Action:    action,
		Domain:    ref.Domain.Name,
		Namespace: ref.Namespace.String(),
		Table:     ref.Table.String(),
		RecordID:  recordID,
		Status:    instrument.StatusOK,
		Metadata:  meta,
	}
	if err != nil {
		ev.Status = instrument.StatusError
		if ev.Metadata == nil {
			ev.Metadata = map[string]any{}
		}
		ev.Metadata["error"] = err.Error()
	}
	e.events.Record(ctx, ev)
}
