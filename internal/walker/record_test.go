package walker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name     string
		pos      int64
		ref, alt string
		wantPos  int64
		wantRef  string
		wantAlt  string
	}{
		{"snv unchanged", 100, "A", "G", 100, "A", "G"},
		{"shared suffix then prefix", 100, "ATG", "ATC", 102, "G", "C"},
		{"deletion unchanged", 100, "AT", "A", 100, "AT", "A"},
		{"insertion unchanged", 100, "A", "AT", 100, "A", "AT"},
		{"suffix trimmed", 100, "CAT", "CT", 100, "CA", "C"},
		{"prefix trimmed", 100, "CATG", "CAG", 101, "AT", "A"},
		{"both trimmed to snv", 100, "GCTA", "GGTA", 101, "C", "G"},
		{"identical kept minimal", 100, "AAA", "AAA", 100, "A", "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, ref, alt := Reduce(tt.pos, tt.ref, tt.alt)
			assert.Equal(t, tt.wantPos, pos)
			assert.Equal(t, tt.wantRef, ref)
			assert.Equal(t, tt.wantAlt, alt)
		})
	}
}

func TestSplitRow(t *testing.T) {
	fields, err := SplitRow("1\t100\tA\tG", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "100", "A", "G"}, fields)

	_, err = SplitRow("1\t100", 4)
	var merr *MalformedRecordError
	require.ErrorAs(t, err, &merr)
	assert.Contains(t, merr.Reason, "columns")
}

func TestParsePos(t *testing.T) {
	fields := []string{"1", "100", "A", "G"}
	pos, err := ParsePos("1\t100\tA\tG", fields, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pos)

	fields[1] = "x"
	_, err = ParsePos("1\tx\tA\tG", fields, 1)
	var merr *MalformedRecordError
	assert.ErrorAs(t, err, &merr)
}
