package diff

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormal(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want []string
	}{
		{
			name: "identical",
			a:    []string{"a", "b"},
			b:    []string{"a", "b"},
			want: nil,
		},
		{
			name: "change one line",
			a:    []string{"db_name=ORCL", "memory_target=2G"},
			b:    []string{"db_name=ORCL", "memory_target=4G"},
			want: []string{"2c2", "< memory_target=2G", "---", "> memory_target=4G"},
		},
		{
			name: "append",
			a:    []string{"a"},
			b:    []string{"a", "b", "c"},
			want: []string{"1a2,3", "> b", "> c"},
		},
		{
			name: "delete",
			a:    []string{"a", "b", "c"},
			b:    []string{"a"},
			want: []string{"2,3d1", "< b", "< c"},
		},
		{
			name: "insert at top",
			a:    []string{"b"},
			b:    []string{"a", "b"},
			want: []string{"0a1", "> a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Normal(tt.a, tt.b)); diff != "" {
				t.Errorf("Normal (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnified(t *testing.T) {
	when := time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)
	from := File{Name: "init.ora", Modified: when, Lines: []string{"a", "b", "c", "d", "e", "f", "g", "h"}}
	to := File{Name: "init.ora.new", Modified: when, Lines: []string{"a", "b", "c", "d", "E", "f", "g", "h"}}

	got, err := Unified(from, to, DefaultContext)
	require.NoError(t, err)
	want := []string{
		"--- init.ora\t2024-03-14 09:30:00.000000000 +0000",
		"+++ init.ora.new\t2024-03-14 09:30:00.000000000 +0000",
		"@@ -2,7 +2,7 @@",
		" b",
		" c",
		" d",
		"-e",
		"+E",
		" f",
		" g",
		" h",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unified (-want +got):\n%s", diff)
	}

	same, err := Unified(from, from, DefaultContext)
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, []string{}))
	assert.False(t, Equal([]string{"a"}, []string{"b"}))
	assert.False(t, Equal([]string{"a"}, []string{"a", "a"}))
}
