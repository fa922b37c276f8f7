package sqlstore

import (
	"strconv"
	"time"

	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/schema"
)

const dateLayout = "2006-01-02"

// encode turns a value into a bind argument for the attribute's column.
func encode(a *schema.Attribute, v instance.Value) (interface{}, error) {
	if a.IsInstance() {
		if !v.IsRef() {
			return nil, errors.Newf("attribute %s.%s holds a scalar where a reference is required", a.Owner, a.Name)
		}
		return int64(v.Key()), nil
	}
	if v.IsRef() {
		return nil, errors.Newf("attribute %s.%s holds a reference where a %s is required", a.Owner, a.Name, a.Type)
	}
	raw := v.Scalar()
	if raw == nil {
		return nil, nil
	}
	switch a.Type {
	case schema.TypeBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		return strconv.ParseBool(v.Text())
	case schema.TypeInteger:
		if n, ok := raw.(int64); ok {
			return n, nil
		}
		return strconv.ParseInt(v.Text(), 10, 64)
	case schema.TypeFloat:
		switch f := raw.(type) {
		case float64:
			return f, nil
		case int64:
			return float64(f), nil
		}
		return strconv.ParseFloat(v.Text(), 64)
	default:
		return v.Text(), nil
	}
}

// decode converts a scanned column value. ok is false for NULL.
func decode(a *schema.Attribute, raw interface{}) (v instance.Value, ok bool, err error) {
	if raw == nil {
		return instance.Value{}, false, nil
	}
	if b, isBytes := raw.([]byte); isBytes {
		raw = string(b)
	}
	if a.IsInstance() {
		switch n := raw.(type) {
		case int64:
			return instance.Ref(instance.Key(n)), n != 0, nil
		case string:
			k, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return instance.Value{}, false, errors.Wrapf(err, "decode %s.%s", a.Owner, a.Name)
			}
			return instance.Ref(instance.Key(k)), k != 0, nil
		}
		return instance.Value{}, false, errors.Newf("decode %s.%s: unexpected %T", a.Owner, a.Name, raw)
	}

	switch a.Type {
	case schema.TypeBoolean:
		switch b := raw.(type) {
		case bool:
			return instance.Scalar(b), true, nil
		case int64:
			return instance.Scalar(b != 0), true, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return instance.Value{}, false, errors.Wrapf(err, "decode %s.%s", a.Owner, a.Name)
			}
			return instance.Scalar(parsed), true, nil
		}
	case schema.TypeInteger:
		switch n := raw.(type) {
		case int64:
			return instance.Scalar(n), true, nil
		case float64:
			return instance.Scalar(int64(n)), true, nil
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return instance.Value{}, false, errors.Wrapf(err, "decode %s.%s", a.Owner, a.Name)
			}
			return instance.Scalar(parsed), true, nil
		}
	case schema.TypeFloat:
		switch f := raw.(type) {
		case float64:
			return instance.Scalar(f), true, nil
		case int64:
			return instance.Scalar(float64(f)), true, nil
		case string:
			parsed, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return instance.Value{}, false, errors.Wrapf(err, "decode %s.%s", a.Owner, a.Name)
			}
			return instance.Scalar(parsed), true, nil
		}
	default:
		switch t := raw.(type) {
		case time.Time:
			return instance.Scalar(t.Format(dateLayout)), true, nil
		case string:
			return instance.Scalar(t), true, nil
		}
		return instance.Scalar(instance.Scalar(raw).Text()), true, nil
	}
	return instance.Value{}, false, errors.Newf("decode %s.%s: unexpected %T for %s", a.Owner, a.Name, raw, a.Type)
}
