// Package store defines the adaptor the slicing core talks to. The closure
// extractor only reads, the writer only writes; neither knows the wire
// protocol or table layout of the backing store.
package store

import (
	"context"

	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/schema"
)

// Shell is an instance whose class is known but whose attributes have not
// been hydrated.
type Shell struct {
	Key   instance.Key
	Class string
}

// Reader is the read side of a store.
type Reader interface {
	// Schema returns the store's own class metadata.
	Schema() *schema.Schema

	// FetchShells resolves keys to shells in one round trip per batch.
	// Keys with no row are absent from the result.
	FetchShells(ctx context.Context, keys []instance.Key) (map[instance.Key]Shell, error)

	// FetchInstancesByClass returns shells for every instance of the class
	// or its subclasses.
	FetchInstancesByClass(ctx context.Context, class string) ([]Shell, error)

	// FetchInstanceByAttribute returns shells of the class whose attribute
	// holds value (a scalar, or an instance.Key for references).
	FetchInstanceByAttribute(ctx context.Context, class, attribute string, value interface{}) ([]Shell, error)

	// LoadAttributeValues batch-hydrates one attribute for many instances.
	// Every shell must have the attribute valid for its class. Values are
	// returned in stored order; instances with no values are absent.
	LoadAttributeValues(ctx context.Context, shells []Shell, attribute string) (map[instance.Key][]instance.Value, error)
}

// Writer is the write side of a store.
type Writer interface {
	// StoreInstance writes one row per ancestor class of class, carrying only
	// the attributes in values. A pending key asks the store to generate one;
	// the key actually used is returned.
	StoreInstance(ctx context.Context, key instance.Key, class string, values map[string][]instance.Value) (instance.Key, error)

	// UpdateInstanceAttribute replaces one attribute of a stored instance.
	UpdateInstanceAttribute(ctx context.Context, key instance.Key, class, attribute string, values []instance.Value) error

	// Exists reports which of the keys already have rows.
	Exists(ctx context.Context, keys []instance.Key) (map[instance.Key]bool, error)
}

// Transactor scopes writes to a single transaction.
type Transactor interface {
	StartTransaction(ctx context.Context) error
	Commit() error
	Rollback() error
	SupportsTransactions() bool
}

// Adaptor is a full store.
type Adaptor interface {
	Reader
	Writer
	Transactor
}

// Provisioner prepares a target for writing: bookkeeping tables, schema
// and instance tables. The writer calls it inside the slice transaction so
// a failed commit leaves none of it behind.
type Provisioner interface {
	Provision(ctx context.Context) error
}

// Hydrate loads every attribute valid for each shell's class, batching one
// LoadAttributeValues call per (class, attribute).
func Hydrate(ctx context.Context, r Reader, shells []Shell) ([]*instance.Instance, error) {
	sch := r.Schema()
	byClass := make(map[string][]Shell)
	var classes []string
	for _, sh := range shells {
		if _, seen := byClass[sh.Class]; !seen {
			classes = append(classes, sh.Class)
		}
		byClass[sh.Class] = append(byClass[sh.Class], sh)
	}

	builders := make(map[instance.Key]*instance.Builder, len(shells))
	for _, sh := range shells {
		builders[sh.Key] = instance.NewBuilder(sh.Key, sh.Class)
	}

	for _, class := range classes {
		group := byClass[class]
		for _, attr := range sch.Attributes(class) {
			values, err := r.LoadAttributeValues(ctx, group, attr.Name)
			if err != nil {
				return nil, err
			}
			for _, sh := range group {
				builders[sh.Key].Set(attr.Name, values[sh.Key]...)
			}
		}
	}

	out := make([]*instance.Instance, 0, len(shells))
	for _, sh := range shells {
		if b, ok := builders[sh.Key]; ok {
			out = append(out, b.Build())
			delete(builders, sh.Key)
		}
	}
	return out, nil
}

// ReleaseRecord is the bookkeeping row written with a committed slice.
type ReleaseRecord struct {
	Number        int
	Date          string
	RunID         string
	InstanceCount int
}

// RevisionRow is one detected change action of one instance.
type RevisionRow struct {
	Key          instance.Key
	Class        string
	ActionType   string
	ActionObject string
}

// Recorder persists release bookkeeping. Stores that implement it receive
// the rows inside the slice transaction.
type Recorder interface {
	RecordRelease(ctx context.Context, rec ReleaseRecord) error
	RecordRevisions(ctx context.Context, release int, rows []RevisionRow) error
}
