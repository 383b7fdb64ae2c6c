package generator

import (
	"math"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		missing int
		opts    []Option
	}{
		{"negative missing", -1, nil},
		{"missing above 100", 101, nil},
		{"unknown precision", 20, []Option{WithPrecision("w")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.missing, tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestRandString(t *testing.T) {
	g, err := New(0, WithSeed(1))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		s := g.RandString("ab", 2)
		assert.Len(t, s, 2)
		assert.Empty(t, strings.Trim(s, "ab"), "unexpected character in %q", s)
	}

	assert.Equal(t, "", g.RandString("", 3))
	assert.Equal(t, "", g.RandString("abc", 0))
}

func TestRandDate_Format(t *testing.T) {
	formats := map[string]*regexp.Regexp{
		"y":  regexp.MustCompile(`^\d{4}$`),
		"M":  regexp.MustCompile(`^\d{4}-\d{2}$`),
		"d":  regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		"h":  regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}$`),
		"m":  regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}$`),
		"s":  regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`),
		"ms": regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}$`),
	}

	g, err := New(0, WithSeed(42))
	require.NoError(t, err)

	for precision, re := range formats {
		t.Run(precision, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				date, err := g.RandDate(precision, DefaultStartYear)
				require.NoError(t, err)
				assert.Regexp(t, re, date)
			}
		})
	}
}

func TestRandDate_Ranges(t *testing.T) {
	g, err := New(0, WithSeed(7))
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		date, err := g.RandDate("ms", 2010)
		require.NoError(t, err)

		year := date[0:4]
		month := date[5:7]
		day := date[8:10]
		hour := date[11:13]
		assert.True(t, year >= "2010" && year <= "2015", "year out of range: %s", date)
		assert.True(t, month >= "01" && month <= "12", "month out of range: %s", date)
		assert.True(t, day >= "01" && day <= "28", "day out of range: %s", date)
		assert.True(t, hour >= "00" && hour <= "23", "hour out of range: %s", date)
	}
}

func TestRandDate_UnknownPrecision(t *testing.T) {
	g, err := New(0)
	require.NoError(t, err)

	_, err = g.RandDate("week", DefaultStartYear)
	assert.Error(t, err)
}

func TestPadZero(t *testing.T) {
	assert.Equal(t, "05", PadZero("5", 2))
	assert.Equal(t, "007", PadZero("7", 3))
	assert.Equal(t, "12", PadZero("12", 2))
	assert.Equal(t, "123", PadZero("123", 2))
}

func TestPayload_PresenceProbability(t *testing.T) {
	const trials = 20000

	for _, missing := range []int{0, 20, 50, 100} {
		g, err := New(missing, WithSeed(uint64(missing)+1))
		require.NoError(t, err)

		present := 0
		for i := 0; i < trials; i++ {
			p := g.Payload(Field{"a", 1}, Field{"b", 2})
			present += len(p)
		}

		got := float64(present) / float64(2*trials)
		want := float64(100-missing) / 100
		assert.LessOrEqual(t, math.Abs(got-want), 0.02, "missing=%d: presence %.3f, want %.3f", missing, got, want)
	}
}

func TestRow_Shape(t *testing.T) {
	g, err := New(0, WithSeed(3))
	require.NoError(t, err)

	row := g.Row()
	require.Len(t, row, 6)

	colA := row["colA"].(string)
	assert.True(t, strings.HasPrefix(row["colC"].(string), colA+" "))
	assert.Len(t, row["colB"], 2)

	d := row["colD"].(int)
	assert.True(t, d >= 0 && d <= 20)

	e := row["colE"].(float64)
	assert.True(t, e >= 0 && e < 20)

	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`, row["date"])
}

func TestRow_AllMissing(t *testing.T) {
	g, err := New(100, WithSeed(9))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Empty(t, g.Row())
	}
}
