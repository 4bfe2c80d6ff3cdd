package postback

import (
	"fmt"
	"strconv"
	"strings"
)

// conversionRequest is the postback body. Affiliate networks are loose
// about types, so uid is accepted as a JSON number or a numeric string.
type conversionRequest struct {
	UID flexID `json:"uid"`
}

type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("postback: uid %q is not numeric", s)
	}
	*f = flexID(id)
	return nil
}
