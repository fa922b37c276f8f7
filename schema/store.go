package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
)

const versionKey = "schema_version"

// Load reads the schema persisted in a store's schema tables.
// A store without schema tables or schema rows yields an ErrNotFound error.
func Load(ctx context.Context, database *db.DB) (*Schema, error) {
	installed, err := db.HasTable(ctx, database, database.Dialect, "schema_class")
	if err != nil {
		return nil, err
	}
	if !installed {
		return nil, errors.NewNotFoundError("store has no schema tables")
	}

	var version string
	err = database.QueryRowContext(ctx,
		database.Dialect.Rebind(`SELECT meta_value FROM schema_meta WHERE meta_key = ?`), versionKey,
	).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.Wrap(err, "read schema version")
	}

	rows, err := database.QueryContext(ctx, `SELECT name, parent, abstract FROM schema_class ORDER BY class_rank`)
	if err != nil {
		return nil, errors.Wrap(err, "read schema classes")
	}
	defer rows.Close()

	var classes []*Class
	byName := make(map[string]*Class)
	for rows.Next() {
		var (
			c      Class
			parent sql.NullString
		)
		if err := rows.Scan(&c.Name, &parent, &c.Abstract); err != nil {
			return nil, errors.Wrap(err, "scan schema class")
		}
		c.Parent = parent.String
		classes = append(classes, &c)
		byName[c.Name] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate schema classes")
	}
	if len(classes) == 0 {
		return nil, errors.NewNotFoundError("store has no schema")
	}

	attrRows, err := database.QueryContext(ctx, `
		SELECT class_name, name, value_type, multiple, defining, allowed_classes
		FROM schema_attribute
		ORDER BY class_name, attribute_rank`)
	if err != nil {
		return nil, errors.Wrap(err, "read schema attributes")
	}
	defer attrRows.Close()

	for attrRows.Next() {
		var (
			className, allowed, valueType string
			a                             Attribute
		)
		if err := attrRows.Scan(&className, &a.Name, &valueType, &a.Multiple, &a.Defining, &allowed); err != nil {
			return nil, errors.Wrap(err, "scan schema attribute")
		}
		c, ok := byName[className]
		if !ok {
			return nil, errors.Newf("attribute %s declared on unknown class %s", a.Name, className)
		}
		a.Type = ValueType(valueType)
		if allowed != "" {
			a.Allowed = strings.Split(allowed, ",")
		}
		c.Own = append(c.Own, &a)
	}
	if err := attrRows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate schema attributes")
	}

	return New(version, classes...)
}

// Save replaces the schema tables' contents with s inside one transaction.
func Save(ctx context.Context, database *db.DB, s *Schema) (retErr error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin schema save")
	}
	defer func() {
		if retErr != nil {
			tx.Rollback()
		}
	}()

	if err := Write(ctx, tx, database.Dialect, s); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit schema save")
}

// Write replaces the schema tables' contents with s through c, usually a
// transaction the caller owns.
func Write(ctx context.Context, c db.Conn, dialect db.Dialect, s *Schema) error {
	for _, stmt := range []string{`DELETE FROM schema_attribute`, `DELETE FROM schema_class`, `DELETE FROM schema_meta`} {
		if _, err := c.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "clear schema tables")
		}
	}

	rebind := dialect.Rebind
	if _, err := c.ExecContext(ctx, rebind(`INSERT INTO schema_meta (meta_key, meta_value) VALUES (?, ?)`), versionKey, s.version); err != nil {
		return errors.Wrap(err, "write schema version")
	}
	for rank, cl := range s.Classes() {
		var parent interface{}
		if cl.Parent != "" {
			parent = cl.Parent
		}
		if _, err := c.ExecContext(ctx,
			rebind(`INSERT INTO schema_class (name, parent, abstract, class_rank) VALUES (?, ?, ?, ?)`),
			cl.Name, parent, cl.Abstract, rank,
		); err != nil {
			return errors.Wrapf(err, "write class %s", cl.Name)
		}
		for arank, a := range cl.Own {
			if _, err := c.ExecContext(ctx,
				rebind(`INSERT INTO schema_attribute (class_name, name, value_type, multiple, defining, allowed_classes, attribute_rank)
					VALUES (?, ?, ?, ?, ?, ?, ?)`),
				cl.Name, a.Name, string(a.Type), a.Multiple, a.Defining, strings.Join(a.Allowed, ","), arank,
			); err != nil {
				return errors.Wrapf(err, "write attribute %s.%s", cl.Name, a.Name)
			}
		}
	}
	return nil
}

// Compatible reports whether target can receive slices produced under
// source: both versions parse and share a major version. Unparseable
// versions are treated as compatible only when they are identical.
func Compatible(source, target *Schema) bool {
	sv, serr := semver.NewVersion(source.version)
	tv, terr := semver.NewVersion(target.version)
	if serr != nil || terr != nil {
		return source.version == target.version
	}
	constraint, err := semver.NewConstraint(fmt.Sprintf("%d.x", sv.Major()))
	if err != nil {
		return false
	}
	return constraint.Check(tv)
}
