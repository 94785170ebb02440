package caseconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSnake(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"serviceName", "service_name"},
		{"isSysAdmin", "is_sys_admin"},
		{"id", "id"},
		{"already_snake", "already_snake"},
		{"address1Line", "address1_line"},
		{"_table", "_table"},
		{"ID", "_i_d"},
		{"Name", "_name"},
		{"userID", "user_i_d"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSnake(tt.in))
		})
	}
}

func TestToCamel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"service_name", "serviceName"},
		{"is_sys_admin", "isSysAdmin"},
		{"id", "id"},
		{"_name", "Name"},
		{"_i_d", "ID"},
		{"user_i_d", "userID"},
		{"__meta_data", "__metaData"},
		{"field_1", "field_1"},
		{"trailing_", "trailing_"},
		{"double__under", "double__under"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToCamel(tt.in))
		})
	}
}

func TestToWire_Nested(t *testing.T) {
	in := map[string]any{
		"serviceName": "db1",
		"config": map[string]any{
			"maxRecords": 1000.0,
			"options":    []any{map[string]any{"allowUpsert": true}, "plainValue", 3.0},
		},
		"tags": []any{"aB", "cD"},
		"none": nil,
	}

	want := map[string]any{
		"service_name": "db1",
		"config": map[string]any{
			"max_records": 1000.0,
			"options":     []any{map[string]any{"allow_upsert": true}, "plainValue", 3.0},
		},
		"tags": []any{"aB", "cD"},
		"none": nil,
	}

	assert.Equal(t, want, ToWire(in))
	assert.Contains(t, in, "serviceName", "input is not modified")
}

func TestRewriteKeys_NonObjects(t *testing.T) {
	assert.Equal(t, "plain", ToWire("plain"))
	assert.Nil(t, ToWire(nil))
	assert.Equal(t, []any{1.0, "x"}, ToWire([]any{1.0, "x"}))
	assert.Equal(t, true, FromWire(true))
}

func TestRewriteKeys_CollisionLastSortedWins(t *testing.T) {
	in := map[string]any{
		"fooBar":  "camel",
		"foo_bar": "snake",
	}
	// "fooBar" sorts before "foo_bar", so the snake_case source wins.
	assert.Equal(t, map[string]any{"foo_bar": "snake"}, ToWire(in))
}

func TestRoundTrip(t *testing.T) {
	inputs := []map[string]any{
		{"serviceName": "db1", "isActive": true},
		{"a": map[string]any{"bC": []any{map[string]any{"dEF": 1.0}}}},
		{"address1Line": "x", "zip": "12345", "meta": map[string]any{"rowCount": 2.0}},
		{"ID": 1.0, "Name": "n", "userID": "u", "nested": map[string]any{"HTTPCode": 200.0}},
		{},
	}
	for _, in := range inputs {
		assert.Equal(t, any(in), FromWire(ToWire(in)))
	}
}
