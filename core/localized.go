package core

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"
)

// LocalizedString holds the same text in the three supported languages.
// Stored as a JSONB column.
type LocalizedString struct {
	Fi string `json:"fi,omitempty"`
	Sv string `json:"sv,omitempty"`
	En string `json:"en,omitempty"`
}

func (ls LocalizedString) IsZero() bool {
	return ls == LocalizedString{}
}

// In returns the text in the given language, falling back en -> fi -> sv.
func (ls LocalizedString) In(lang string) string {
	switch lang {
	case "fi":
		if ls.Fi != "" {
			return ls.Fi
		}
	case "sv":
		if ls.Sv != "" {
			return ls.Sv
		}
	}
	if ls.En != "" {
		return ls.En
	}
	if ls.Fi != "" {
		return ls.Fi
	}
	return ls.Sv
}

func (ls LocalizedString) Value() (driver.Value, error) {
	return json.Marshal(ls)
}

func (ls *LocalizedString) Scan(src interface{}) error {
	if src == nil {
		*ls = LocalizedString{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.Errorf("LocalizedString.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, ls)
}
