package reply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/specand/pkg/status"
)

func TestTokenizer(t *testing.T) {
	tok := NewTokenizer([]byte(" 1.5, 'a,b' ,\"x\",-3\n"))

	assert.Equal(t, 4, tok.Count())
	assert.Equal(t, []string{"1.5", "'a,b'", "\"x\"", "-3"}, tok.All())

	_, ok := tok.Next()
	assert.False(t, ok, "exhausted tokenizer must stay exhausted")

	tok.Reset()
	first, ok := tok.Next()
	require.True(t, ok)
	assert.Equal(t, "1.5", first)

	// Count does not move the cursor
	assert.Equal(t, 4, tok.Count())
	second, _ := tok.Next()
	assert.Equal(t, "'a,b'", second)
}

func TestTokenizerEmpty(t *testing.T) {
	tok := NewTokenizer([]byte("\r\n"))
	_, ok := tok.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, tok.Count())
	assert.Nil(t, Split(nil))
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "QPSK", Unquote("'QPSK'"))
	assert.Equal(t, "QPSK", Unquote("\"QPSK\""))
	assert.Equal(t, "'QPSK", Unquote("'QPSK"))
	assert.Equal(t, "", Unquote("''"))
}

func TestRecordScanner(t *testing.T) {
	shape := NewShape(
		Field{Name: "Seconds", Kind: FieldInt},
		Field{Name: "Nanoseconds", Kind: FieldInt},
		Field{Name: "Reserved1", Kind: FieldReal},
		Field{Name: "Reserved2", Kind: FieldReal},
	)
	data := []byte("1700000000,500000000,0,0,1700000001,250000000,0,0")

	sc := NewRecordScanner(data, shape)
	var seconds []int64
	for sc.Scan() {
		rec := sc.Record()
		assert.Equal(t, 4, rec.Len())
		seconds = append(seconds, rec.Int("Seconds"))
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []int64{1700000000, 1700000001}, seconds)

	t.Run("Restartable", func(t *testing.T) {
		sc.Reset()
		require.True(t, sc.Scan())
		assert.Equal(t, int64(500000000), sc.Record().Int("nanoseconds"))
	})

	t.Run("PartialRecord", func(t *testing.T) {
		records, err := ParseRecords([]byte("1,2,3,4,5,6"), shape)
		assert.Nil(t, records)
		assert.True(t, status.Is(err, status.KindNoData), "got %v", err)
	})

	t.Run("BadField", func(t *testing.T) {
		_, err := ParseRecords([]byte("1,x,3,4"), shape)
		assert.True(t, status.Is(err, status.KindNoData), "got %v", err)
	})

	t.Run("EmptyShape", func(t *testing.T) {
		_, err := ParseRecords(data, Shape{})
		assert.True(t, status.Is(err, status.KindInvalidParameter), "got %v", err)
	})
}

func TestMixedRecord(t *testing.T) {
	shape := NewShape(
		Field{Name: "Type", Kind: FieldString},
		Field{Name: "Frequency", Kind: FieldReal},
		Field{Name: "Level", Kind: FieldReal},
		Field{Name: "Pass", Kind: FieldBool},
	)

	records, err := ParseRecords([]byte("'ABS',-1.8E+06,-62.5,1,'REL',1.8E+06,-70,0"), shape)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "ABS", records[0].Str("Type"))
	assert.Equal(t, -1.8e6, records[0].Real("Frequency"))
	assert.True(t, records[0].Bool("Pass"))
	assert.False(t, records[1].Bool("Pass"))
	assert.Equal(t, -70.0, records[1].Real("Level"))

	// unknown names read as zero values
	assert.Equal(t, 0.0, records[0].Real("Missing"))
	assert.Equal(t, "", records[0].Str("Missing"))
}

func TestParseFloatsAndInts(t *testing.T) {
	values, err := ParseFloats([]byte("-80.1,-79.5E+00, 3"))
	require.NoError(t, err)
	assert.Equal(t, []float64{-80.1, -79.5, 3}, values)

	_, err = ParseFloats([]byte("1,NaNx"))
	assert.True(t, status.Is(err, status.KindNoData))

	ints, err := ParseInts([]byte("0,1,3,2,1E+00"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3, 2, 1}, ints)

	_, err = ParseInts([]byte("1.5"))
	assert.Error(t, err)
}

func TestReals(t *testing.T) {
	shape := Reals("I", "Q")
	records, err := ParseRecords([]byte("0.5,-0.5,1,0"), shape)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, -0.5, records[0].Real("Q"))
	assert.Equal(t, 1.0, records[1].Real("I"))
}
