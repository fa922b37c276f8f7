package sqlstore

import (
	"context"
	"strings"

	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/schema"
)

// StoreInstance writes one row per ancestor class, root first. Only
// attributes present in values are written; references must point at rows
// that already exist in this store.
func (s *Store) StoreInstance(ctx context.Context, key instance.Key, class string, values map[string][]instance.Value) (instance.Key, error) {
	chain := s.schema.Ancestors(class)
	if chain == nil {
		return 0, errors.Mark(errors.Newf("class %s is not defined in the %s store", class, s.db.Dialect.Name), errors.ErrSchemaDrift)
	}

	attrs := make(map[string]*schema.Attribute, len(values))
	var refs []instance.Key
	for name, vs := range values {
		a, ok := s.schema.Attribute(class, name)
		if !ok {
			return 0, errors.Mark(errors.Newf("attribute %s is not valid for %s", name, class), errors.ErrSchemaDrift)
		}
		if !a.Multiple && len(vs) > 1 {
			return 0, errors.Newf("single-valued attribute %s.%s given %d values", class, name, len(vs))
		}
		attrs[name] = a
		if s.hasClassColumn(a) {
			for _, v := range vs {
				refs = append(refs, v.Key())
			}
		}
	}
	refClasses, err := s.referencedClasses(ctx, refs)
	if err != nil {
		return 0, err
	}

	rowCols := func(owner string) ([]string, []interface{}, error) {
		var cols []string
		var args []interface{}
		for _, a := range s.schema.OwnAttributes(owner) {
			vs, present := values[a.Name]
			if !present || a.Multiple || len(vs) == 0 {
				continue
			}
			arg, err := encode(a, vs[0])
			if err != nil {
				return nil, nil, err
			}
			cols = append(cols, a.Name)
			args = append(args, arg)
			if s.hasClassColumn(a) {
				cols = append(cols, classColumn(a))
				args = append(args, refClasses[vs[0].Key()])
			}
		}
		return cols, args, nil
	}

	root := chain[0]
	cols, args, err := rowCols(root)
	if err != nil {
		return 0, err
	}
	cols = append([]string{ClassColumn}, cols...)
	args = append([]interface{}{class}, args...)

	if key.Pending() {
		key, err = s.insertGenerated(ctx, root, cols, args)
	} else {
		err = s.insertRow(ctx, root, append([]string{KeyColumn}, cols...), append([]interface{}{int64(key)}, args...))
	}
	if err != nil {
		return 0, errors.Wrapf(err, "insert %s row for %s", root, class)
	}

	for _, ancestor := range chain[1:] {
		cols, args, err := rowCols(ancestor)
		if err != nil {
			return 0, err
		}
		if err := s.insertRow(ctx, ancestor, append([]string{KeyColumn}, cols...), append([]interface{}{int64(key)}, args...)); err != nil {
			return 0, errors.Wrapf(err, "insert %s row for %s[%d]", ancestor, class, key)
		}
	}

	for _, ancestor := range chain {
		for _, a := range s.schema.OwnAttributes(ancestor) {
			if !a.Multiple || len(values[a.Name]) == 0 {
				continue
			}
			if err := s.insertJunction(ctx, a, key, values[a.Name], refClasses); err != nil {
				return 0, errors.Wrapf(err, "insert %s[%d].%s", class, key, a.Name)
			}
		}
	}

	s.logger.Debugw("Stored instance",
		logger.FieldKey, int64(key),
		logger.FieldClass, class,
		logger.FieldCount, len(chain),
	)
	return key, nil
}

// UpdateInstanceAttribute replaces the values of one attribute.
func (s *Store) UpdateInstanceAttribute(ctx context.Context, key instance.Key, class, attribute string, values []instance.Value) error {
	a, ok := s.schema.Attribute(class, attribute)
	if !ok {
		return errors.Mark(errors.Newf("attribute %s is not valid for %s", attribute, class), errors.ErrSchemaDrift)
	}
	var refs []instance.Key
	if s.hasClassColumn(a) {
		for _, v := range values {
			refs = append(refs, v.Key())
		}
	}
	refClasses, err := s.referencedClasses(ctx, refs)
	if err != nil {
		return err
	}

	if a.Multiple {
		if err := s.wait(ctx); err != nil {
			return err
		}
		del := s.db.Dialect.Rebind("DELETE FROM " + s.quote(JunctionTable(a)) + " WHERE " + s.quote(KeyColumn) + " = ?")
		if _, err := s.conn().ExecContext(ctx, del, int64(key)); err != nil {
			return errors.Wrapf(err, "clear %s[%d].%s", class, key, attribute)
		}
		return errors.Wrapf(s.insertJunction(ctx, a, key, values, refClasses), "update %s[%d].%s", class, key, attribute)
	}

	if len(values) > 1 {
		return errors.Newf("single-valued attribute %s.%s given %d values", class, attribute, len(values))
	}
	var arg, refClass interface{}
	if len(values) == 1 {
		if arg, err = encode(a, values[0]); err != nil {
			return err
		}
		if s.hasClassColumn(a) {
			refClass = refClasses[values[0].Key()]
		}
	}
	set := s.quote(a.Name) + " = ?"
	args := []interface{}{arg}
	if s.hasClassColumn(a) {
		set += ", " + s.quote(classColumn(a)) + " = ?"
		args = append(args, refClass)
	}
	args = append(args, int64(key))

	if err := s.wait(ctx); err != nil {
		return err
	}
	query := s.db.Dialect.Rebind("UPDATE " + s.quote(a.Owner) + " SET " + set + " WHERE " + s.quote(KeyColumn) + " = ?")
	res, err := s.conn().ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "update %s[%d].%s", class, key, attribute)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Newf("update %s[%d].%s: no %s row", class, key, attribute, a.Owner)
	}
	return nil
}

// Exists reports which keys have a root row.
func (s *Store) Exists(ctx context.Context, keys []instance.Key) (map[instance.Key]bool, error) {
	shells, err := s.FetchShells(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[instance.Key]bool, len(shells))
	for k := range shells {
		out[k] = true
	}
	return out, nil
}

// referencedClasses resolves the class of every referenced key. A reference
// to a key without a row is an error.
func (s *Store) referencedClasses(ctx context.Context, refs []instance.Key) (map[instance.Key]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	shells, err := s.FetchShells(ctx, refs)
	if err != nil {
		return nil, err
	}
	out := make(map[instance.Key]string, len(shells))
	for _, k := range refs {
		sh, ok := shells[k]
		if !ok {
			return nil, errors.Mark(errors.Newf("reference to %d has no row", k), errors.ErrDataIntegrity)
		}
		out[k] = sh.Class
	}
	return out, nil
}

func (s *Store) insertRow(ctx context.Context, table string, cols []string, args []interface{}) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.conn().ExecContext(ctx, s.insertSQL(table, cols), args...)
	return err
}

// insertGenerated inserts a root row and returns the key the store assigned.
func (s *Store) insertGenerated(ctx context.Context, table string, cols []string, args []interface{}) (instance.Key, error) {
	if !s.db.Dialect.ReturningKey() {
		if err := s.wait(ctx); err != nil {
			return 0, err
		}
		res, err := s.conn().ExecContext(ctx, s.insertSQL(table, cols), args...)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		return instance.Key(id), err
	}

	// explicit keys do not advance the sequence
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	resync := "SELECT setval(pg_get_serial_sequence('" + s.quote(table) + "', '" + KeyColumn + "'), " +
		"COALESCE((SELECT MAX(" + s.quote(KeyColumn) + ") FROM " + s.quote(table) + "), 0) + 1, false)"
	if _, err := s.conn().ExecContext(ctx, resync); err != nil {
		return 0, errors.Wrap(err, "resync key sequence")
	}

	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	var id int64
	query := s.insertSQL(table, cols) + " RETURNING " + s.quote(KeyColumn)
	if err := s.conn().QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return instance.Key(id), nil
}

func (s *Store) insertJunction(ctx context.Context, a *schema.Attribute, key instance.Key, values []instance.Value, refClasses map[instance.Key]string) error {
	cols := []string{KeyColumn, rankColumn(a), a.Name}
	if s.hasClassColumn(a) {
		cols = append(cols, classColumn(a))
	}
	query := s.insertSQL(JunctionTable(a), cols)
	for rank, v := range values {
		arg, err := encode(a, v)
		if err != nil {
			return err
		}
		args := []interface{}{int64(key), rank, arg}
		if s.hasClassColumn(a) {
			args = append(args, refClasses[v.Key()])
		}
		if err := s.wait(ctx); err != nil {
			return err
		}
		if _, err := s.conn().ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	for n, c := range cols {
		quoted[n] = s.quote(c)
	}
	return s.db.Dialect.Rebind("INSERT INTO " + s.quote(table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + db.Placeholders(len(cols)) + ")")
}
