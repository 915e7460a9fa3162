package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobcan-tools/jobcan-di/internal/pipeline"
)

func unit(t *testing.T, raw string) pipeline.Unit {
	t.Helper()
	var u any
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	return u
}

func TestRecursiveGetEmptyPath(t *testing.T) {
	data := unit(t, `{"a": 1}`)
	got, err := RecursiveGet(data, nil, Strict)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRecursiveGetDescent(t *testing.T) {
	data := unit(t, `{"a": {"b": [10, 20, 30]}}`)

	got, err := RecursiveGet(data, pipeline.KeyPath{pipeline.Key("a"), pipeline.Key("b"), pipeline.Index(1)}, Strict)
	require.NoError(t, err)
	assert.Equal(t, float64(20), got)
}

func TestRecursiveGetAggregate(t *testing.T) {
	data := unit(t, `{"xs": [{"v": 1}, {"v": 2}]}`)
	got, err := RecursiveGet(data, pipeline.KeyPath{pipeline.Key("xs"), pipeline.Aggregate(), pipeline.Key("v")}, Strict)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, got)
}

func TestRecursiveGetKeyOverListLenient(t *testing.T) {
	// A key step on a list maps over elements without being consumed.
	data := unit(t, `[{"v": 1}, {"v": 2}]`)
	got, err := RecursiveGet(data, pipeline.KeyPath{pipeline.Key("v")}, Lenient)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, got)
}

func TestRecursiveGetStrictRejections(t *testing.T) {
	tests := []struct {
		name string
		data string
		path pipeline.KeyPath
	}{
		{"missing key", `{"a": 1}`, pipeline.KeyPath{pipeline.Key("b")}},
		{"index out of range", `[1]`, pipeline.KeyPath{pipeline.Index(5)}},
		{"key step on list", `[1, 2]`, pipeline.KeyPath{pipeline.Key("a")}},
		{"index step on mapping", `{"a": 1}`, pipeline.KeyPath{pipeline.Index(0)}},
		{"descend into scalar", `{"a": 1}`, pipeline.KeyPath{pipeline.Key("a"), pipeline.Key("b")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecursiveGet(unit(t, tt.data), tt.path, Strict)
			assert.Error(t, err)

			got, err := RecursiveGet(unit(t, tt.data), tt.path, Lenient)
			require.NoError(t, err)
			if tt.name != "key step on list" {
				assert.Nil(t, got)
			}
		})
	}
}

// The canonical expansion scenario: one independent placeholder, one
// aggregate group with a plain member and a nested-aggregate member.
func TestExpandNamedNestedAggregates(t *testing.T) {
	data := unit(t, `{
		"user_code": "foo",
		"user_positions": [
			{"position_code": "m", "roles": ["hr", "fin"]},
			{"position_code": "o", "roles": ["sales"]}
		]
	}`)

	params := []pipeline.NamedParam{
		{Placeholder: "u", Path: pipeline.KeyPath{pipeline.Key("user_code")}},
		{Placeholder: "p", Path: pipeline.KeyPath{pipeline.Key("user_positions"), pipeline.Aggregate(), pipeline.Key("position_code")}},
		{Placeholder: "r", Path: pipeline.KeyPath{pipeline.Key("user_positions"), pipeline.Aggregate(), pipeline.Key("roles"), pipeline.Aggregate()}},
	}

	rows, err := ExpandNamed(data, params)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, map[string]any{"u": "foo", "p": "m", "r": "hr"}, rows[0])
	assert.Equal(t, map[string]any{"u": "foo", "p": "m", "r": "fin"}, rows[1])
	assert.Equal(t, map[string]any{"u": "foo", "p": "o", "r": "sales"}, rows[2])
}

func TestExpandNamedNilGroup(t *testing.T) {
	data := unit(t, `{"user_code": "foo"}`)
	params := []pipeline.NamedParam{
		{Placeholder: "u", Path: pipeline.KeyPath{pipeline.Key("user_code")}},
		{Placeholder: "p", Path: pipeline.KeyPath{pipeline.Key("user_positions"), pipeline.Aggregate(), pipeline.Key("position_code")}},
	}

	rows, err := ExpandNamed(data, params)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "foo", rows[0]["u"])
	assert.Nil(t, rows[0]["p"])
}

func TestExpandNamedNonListGroupErrors(t *testing.T) {
	data := unit(t, `{"xs": 42}`)
	params := []pipeline.NamedParam{
		{Placeholder: "v", Path: pipeline.KeyPath{pipeline.Key("xs"), pipeline.Aggregate()}},
	}
	_, err := ExpandNamed(data, params)
	assert.Error(t, err)
}

// Product-size law: with independent groups and no nested aggregates,
// the row count is the product of inner list lengths.
func TestExpandNamedProductSize(t *testing.T) {
	data := unit(t, `{
		"a": [{"x": 1}, {"x": 2}, {"x": 3}],
		"b": [{"y": 10}, {"y": 20}]
	}`)
	params := []pipeline.NamedParam{
		{Placeholder: "x", Path: pipeline.KeyPath{pipeline.Key("a"), pipeline.Aggregate(), pipeline.Key("x")}},
		{Placeholder: "y", Path: pipeline.KeyPath{pipeline.Key("b"), pipeline.Aggregate(), pipeline.Key("y")}},
	}

	rows, err := ExpandNamed(data, params)
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	// Ordering: first group's elements vary slowest.
	assert.Equal(t, float64(1), rows[0]["x"])
	assert.Equal(t, float64(10), rows[0]["y"])
	assert.Equal(t, float64(1), rows[1]["x"])
	assert.Equal(t, float64(20), rows[1]["y"])
	assert.Equal(t, float64(2), rows[2]["x"])
}

func TestExpandNamedEmptyInnerList(t *testing.T) {
	data := unit(t, `{"a": []}`)
	params := []pipeline.NamedParam{
		{Placeholder: "x", Path: pipeline.KeyPath{pipeline.Key("a"), pipeline.Aggregate(), pipeline.Key("x")}},
	}
	rows, err := ExpandNamed(data, params)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExpandPositionalSerialization(t *testing.T) {
	data := unit(t, `{"code": "c1", "items": [{"n": "a"}, {"n": "b"}]}`)
	params := []pipeline.KeyPath{
		{pipeline.Key("code")},
		{pipeline.Key("items"), pipeline.Aggregate(), pipeline.Key("n")},
	}

	tuples, err := ExpandPositional(data, params)
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	assert.Equal(t, []any{"c1", "a"}, tuples[0])
	assert.Equal(t, []any{"c1", "b"}, tuples[1])
}

func TestConvert(t *testing.T) {
	tests := []struct {
		conv pipeline.Conversion
		in   any
		want any
	}{
		{pipeline.ToInt, "42", int64(42)},
		{pipeline.ToInt, 41.9, int64(41)},
		{pipeline.ToInt, true, int64(1)},
		{pipeline.ToFloat, "3.5", 3.5},
		{pipeline.ToFloat, int64(2), 2.0},
		{pipeline.ToString, 1.5, "1.5"},
		{pipeline.ToString, true, "true"},
		{pipeline.ToBool, "true", true},
		{pipeline.ToBool, float64(0), false},
		{pipeline.ToBool, int64(2), true},
	}
	for _, tt := range tests {
		got, err := Convert(tt.in, tt.conv)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s(%v)", tt.conv, tt.in)
	}

	// nil passes through untouched.
	got, err := Convert(nil, pipeline.ToInt)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Convert("abc", pipeline.ToInt)
	assert.Error(t, err)
}

func TestApplyNamedWithConversions(t *testing.T) {
	profile := pipeline.NewNamedProfile("t", "INSERT INTO t VALUES (:u, :n)", nil,
		[]pipeline.NamedParam{
			{Placeholder: "u", Path: pipeline.KeyPath{pipeline.Key("user_code")}},
			{Placeholder: "n", Path: pipeline.KeyPath{pipeline.Key("count")}},
		},
		map[string]pipeline.Conversion{"n": pipeline.ToInt},
	)

	rows, err := Apply(profile, []pipeline.Unit{
		unit(t, `{"user_code": "A", "count": "7"}`),
		unit(t, `{"user_code": "B", "count": 8.0}`),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(7), rows[0].Named["n"])
	assert.Equal(t, int64(8), rows[1].Named["n"])
}

func TestApplyEmptySourceList(t *testing.T) {
	profile := pipeline.NewPositionalProfile("t", "INSERT INTO t VALUES (?)", nil,
		[]pipeline.KeyPath{{pipeline.Key("a")}}, nil)
	rows, err := Apply(profile, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
