package sqlstore

import (
	"context"
	"time"

	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/store"
)

// chunks splits keys into batches of at most size.
func chunks(keys []instance.Key, size int) [][]instance.Key {
	var out [][]instance.Key
	for len(keys) > size {
		out = append(out, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

func keyArgs(keys []instance.Key) []interface{} {
	args := make([]interface{}, len(keys))
	for n, k := range keys {
		args[n] = int64(k)
	}
	return args
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for n, v := range values {
		args[n] = v
	}
	return args
}

// FetchShells resolves keys to (key, class) pairs from the root table.
func (s *Store) FetchShells(ctx context.Context, keys []instance.Key) (map[instance.Key]store.Shell, error) {
	out := make(map[instance.Key]store.Shell, len(keys))
	root := s.quote(s.schema.Root())
	for _, batch := range chunks(keys, s.batch) {
		query := s.db.Dialect.Rebind("SELECT " + s.quote(KeyColumn) + ", " + s.quote(ClassColumn) +
			" FROM " + root + " WHERE " + s.quote(KeyColumn) + " IN (" + db.Placeholders(len(batch)) + ")")
		shells, err := s.queryShells(ctx, query, keyArgs(batch)...)
		if err != nil {
			return nil, errors.Wrap(err, "fetch shells")
		}
		for _, sh := range shells {
			out[sh.Key] = sh
		}
	}
	return out, nil
}

// FetchInstancesByClass returns shells of the class and its subclasses,
// ordered by key.
func (s *Store) FetchInstancesByClass(ctx context.Context, class string) ([]store.Shell, error) {
	classes := s.schema.Subclasses(class)
	if len(classes) == 0 {
		return nil, errors.Newf("unknown class %s", class)
	}
	query := s.db.Dialect.Rebind("SELECT " + s.quote(KeyColumn) + ", " + s.quote(ClassColumn) +
		" FROM " + s.quote(s.schema.Root()) +
		" WHERE " + s.quote(ClassColumn) + " IN (" + db.Placeholders(len(classes)) + ")" +
		" ORDER BY " + s.quote(KeyColumn))
	shells, err := s.queryShells(ctx, query, stringArgs(classes)...)
	return shells, errors.Wrapf(err, "fetch instances of %s", class)
}

// FetchInstanceByAttribute returns shells of the class (or its subclasses)
// whose attribute holds value.
func (s *Store) FetchInstanceByAttribute(ctx context.Context, class, attribute string, value interface{}) ([]store.Shell, error) {
	classes := s.schema.Subclasses(class)
	if len(classes) == 0 {
		return nil, errors.Newf("unknown class %s", class)
	}
	a, ok := s.schema.Attribute(class, attribute)
	if !ok {
		return nil, errors.Mark(errors.Newf("attribute %s is not valid for %s", attribute, class), errors.ErrSchemaDrift)
	}
	arg, err := bindValue(a, value)
	if err != nil {
		return nil, err
	}

	key := s.quote(KeyColumn)
	root := s.quote(s.schema.Root())
	var query string
	switch {
	case a.Multiple:
		query = "SELECT DISTINCT r." + key + ", r." + s.quote(ClassColumn) + " FROM " + root + " r" +
			" JOIN " + s.quote(JunctionTable(a)) + " m ON m." + key + " = r." + key +
			" WHERE m." + s.quote(a.Name) + " = ?"
	case a.Owner == s.schema.Root():
		query = "SELECT r." + key + ", r." + s.quote(ClassColumn) + " FROM " + root + " r" +
			" WHERE r." + s.quote(a.Name) + " = ?"
	default:
		query = "SELECT r." + key + ", r." + s.quote(ClassColumn) + " FROM " + root + " r" +
			" JOIN " + s.quote(a.Owner) + " t ON t." + key + " = r." + key +
			" WHERE t." + s.quote(a.Name) + " = ?"
	}
	query += " AND r." + s.quote(ClassColumn) + " IN (" + db.Placeholders(len(classes)) + ") ORDER BY r." + key

	args := append([]interface{}{arg}, stringArgs(classes)...)
	shells, err := s.queryShells(ctx, s.db.Dialect.Rebind(query), args...)
	return shells, errors.Wrapf(err, "fetch %s by %s", class, attribute)
}

func bindValue(a *schema.Attribute, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case instance.Key:
		return int64(v), nil
	case instance.Value:
		return encode(a, v)
	default:
		return encode(a, instance.Scalar(v))
	}
}

func (s *Store) queryShells(ctx context.Context, query string, args ...interface{}) ([]store.Shell, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Shell
	for rows.Next() {
		var (
			key   int64
			class string
		)
		if err := rows.Scan(&key, &class); err != nil {
			return nil, err
		}
		out = append(out, store.Shell{Key: instance.Key(key), Class: class})
	}
	return out, rows.Err()
}

// LoadAttributeValues batch-loads one attribute for many instances. Shells
// are grouped by the class owning the attribute so unrelated classes that
// declare the same attribute name are read from their own tables.
func (s *Store) LoadAttributeValues(ctx context.Context, shells []store.Shell, attribute string) (map[instance.Key][]instance.Value, error) {
	groups := make(map[*schema.Attribute][]instance.Key)
	var order []*schema.Attribute
	for _, sh := range shells {
		a, ok := s.schema.Attribute(sh.Class, attribute)
		if !ok {
			return nil, errors.Mark(
				errors.Newf("attribute %s is not valid for %s (%d)", attribute, sh.Class, sh.Key),
				errors.ErrSchemaDrift)
		}
		if _, seen := groups[a]; !seen {
			order = append(order, a)
		}
		groups[a] = append(groups[a], sh.Key)
	}

	out := make(map[instance.Key][]instance.Value)
	for _, a := range order {
		start := time.Now()
		for _, batch := range chunks(groups[a], s.batch) {
			if err := s.loadBatch(ctx, a, batch, out); err != nil {
				return nil, errors.Wrapf(err, "load %s.%s", a.Owner, a.Name)
			}
		}
		s.logger.Debugw("Loaded attribute values",
			logger.FieldClass, a.Owner,
			logger.FieldAttribute, a.Name,
			logger.FieldCount, len(groups[a]),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	}
	return out, nil
}

func (s *Store) loadBatch(ctx context.Context, a *schema.Attribute, batch []instance.Key, out map[instance.Key][]instance.Value) error {
	key := s.quote(KeyColumn)
	var query string
	if a.Multiple {
		query = "SELECT " + key + ", " + s.quote(a.Name) + " FROM " + s.quote(JunctionTable(a)) +
			" WHERE " + key + " IN (" + db.Placeholders(len(batch)) + ")" +
			" ORDER BY " + key + ", " + s.quote(rankColumn(a))
	} else {
		query = "SELECT " + key + ", " + s.quote(a.Name) + " FROM " + s.quote(a.Owner) +
			" WHERE " + key + " IN (" + db.Placeholders(len(batch)) + ")"
	}

	if err := s.wait(ctx); err != nil {
		return err
	}
	rows, err := s.conn().QueryContext(ctx, s.db.Dialect.Rebind(query), keyArgs(batch)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			k   int64
			raw interface{}
		)
		if err := rows.Scan(&k, &raw); err != nil {
			return err
		}
		v, ok, err := decode(a, raw)
		if err != nil {
			return err
		}
		if ok {
			out[instance.Key(k)] = append(out[instance.Key(k)], v)
		}
	}
	return rows.Err()
}
