package sqlstore

import (
	"context"
	"strings"

	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/schema"
)

// Reserved column names.
const (
	KeyColumn   = "DB_ID"
	ClassColumn = "_class"
)

// JunctionTable names the table holding a multi-valued attribute.
func JunctionTable(a *schema.Attribute) string {
	return a.Owner + "_2_" + a.Name
}

func rankColumn(a *schema.Attribute) string  { return a.Name + "_rank" }
func classColumn(a *schema.Attribute) string { return a.Name + "_class" }

// hasClassColumn reports whether references carry the referenced class
// next to the key. Root-level references store the key only.
func (s *Store) hasClassColumn(a *schema.Attribute) bool {
	return a.IsInstance() && !s.schema.IsRootAttribute(a)
}

func (s *Store) quote(ident string) string { return s.db.Dialect.Quote(ident) }

// EnsureTables creates the instance tables for every class of the schema.
// Existing tables are left alone.
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, stmt := range s.tableDDL() {
		if err := s.wait(ctx); err != nil {
			return err
		}
		if _, err := s.conn().ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "create instance table: %s", firstLine(stmt))
		}
	}
	s.logger.Infow("Instance tables ensured",
		logger.FieldStore, s.db.Dialect.Name,
		logger.FieldCount, len(s.schema.Classes()),
	)
	return nil
}

func (s *Store) tableDDL() []string {
	d := s.db.Dialect
	keyType := d.ColumnType(string(schema.TypeInteger))
	root := s.schema.Root()

	var stmts []string
	for _, c := range s.schema.Classes() {
		var cols []string
		if c.Name == root {
			cols = append(cols,
				d.KeyColumnDDL(KeyColumn),
				s.quote(ClassColumn)+" TEXT NOT NULL",
			)
		} else {
			cols = append(cols, s.quote(KeyColumn)+" "+keyType+" PRIMARY KEY")
		}
		for _, a := range c.Own {
			if a.Multiple {
				continue
			}
			cols = append(cols, s.quote(a.Name)+" "+d.ColumnType(string(a.Type)))
			if s.hasClassColumn(a) {
				cols = append(cols, s.quote(classColumn(a))+" TEXT")
			}
		}
		stmts = append(stmts, "CREATE TABLE IF NOT EXISTS "+s.quote(c.Name)+" (\n\t"+strings.Join(cols, ",\n\t")+"\n)")

		for _, a := range c.Own {
			if !a.Multiple {
				continue
			}
			jcols := []string{
				s.quote(KeyColumn) + " " + keyType + " NOT NULL",
				s.quote(rankColumn(a)) + " INTEGER NOT NULL",
				s.quote(a.Name) + " " + d.ColumnType(string(a.Type)),
			}
			if s.hasClassColumn(a) {
				jcols = append(jcols, s.quote(classColumn(a))+" TEXT")
			}
			jcols = append(jcols, "PRIMARY KEY ("+s.quote(KeyColumn)+", "+s.quote(rankColumn(a))+")")
			stmts = append(stmts, "CREATE TABLE IF NOT EXISTS "+s.quote(JunctionTable(a))+" (\n\t"+strings.Join(jcols, ",\n\t")+"\n)")
		}
	}
	stmts = append(stmts, "CREATE INDEX IF NOT EXISTS "+s.quote("idx_"+root+"_class")+" ON "+s.quote(root)+" ("+s.quote(ClassColumn)+")")
	return stmts
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
