package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizedString_In(t *testing.T) {
	full := LocalizedString{Fi: "Kurssi", Sv: "Kurs", En: "Course"}

	tests := []struct {
		name string
		ls   LocalizedString
		lang string
		want string
	}{
		{name: "fi", ls: full, lang: "fi", want: "Kurssi"},
		{name: "sv", ls: full, lang: "sv", want: "Kurs"},
		{name: "en", ls: full, lang: "en", want: "Course"},
		{name: "unknown language falls back to en", ls: full, lang: "de", want: "Course"},
		{name: "missing fi falls back to en", ls: LocalizedString{Sv: "Kurs", En: "Course"}, lang: "fi", want: "Course"},
		{name: "missing en falls back to fi", ls: LocalizedString{Fi: "Kurssi", Sv: "Kurs"}, lang: "en", want: "Kurssi"},
		{name: "sv only", ls: LocalizedString{Sv: "Kurs"}, lang: "en", want: "Kurs"},
		{name: "empty", ls: LocalizedString{}, lang: "fi", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ls.In(tt.lang))
		})
	}
}

func TestLocalizedString_IsZero(t *testing.T) {
	assert.True(t, LocalizedString{}.IsZero())
	assert.False(t, LocalizedString{Fi: "x"}.IsZero())
}

func TestLocalizedString_ValueScan(t *testing.T) {
	ls := LocalizedString{Fi: "Kurssi", En: "Course"}

	val, err := ls.Value()
	require.NoError(t, err)

	var scanned LocalizedString
	require.NoError(t, scanned.Scan(val))
	assert.Equal(t, ls, scanned)

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsZero())

	assert.Error(t, scanned.Scan(42))
}
