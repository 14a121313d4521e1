package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexString accepts a JSON string or number. Reception forms post phone
// numbers either way.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*s = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number, a numeric string, an empty string or null.
type flexInt struct {
	Value *int
}

func (i *flexInt) UnmarshalJSON(data []byte) error {
	var raw flexString
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	if raw == "" {
		i.Value = nil
		return nil
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return fmt.Errorf("expected integer, got %q", string(raw))
	}
	i.Value = &v
	return nil
}

type registerRequest struct {
	Name        string     `json:"name"`
	PhoneNumber flexString `json:"phoneNumber"`
	Department  string     `json:"department"`
}

type loginRequest struct {
	PhoneNumber flexString `json:"phoneNumber"`
	LoginCode   flexString `json:"loginCode"`
	Role        string     `json:"role"`
	UserType    string     `json:"userType"`
}

func (r loginRequest) role() string {
	if r.Role != "" {
		return strings.TrimSpace(r.Role)
	}
	return strings.TrimSpace(r.UserType)
}

type checkInRequest struct {
	Name        string     `json:"name"`
	Age         flexInt    `json:"age"`
	Gender      string     `json:"gender"`
	Phone       flexString `json:"phone"`
	PhoneNumber flexString `json:"phoneNumber"`
	Department  string     `json:"department"`
	Doctor      string     `json:"doctor"`
}

func (r checkInRequest) phone() string {
	if r.Phone != "" {
		return string(r.Phone)
	}
	return string(r.PhoneNumber)
}

type advanceRequest struct {
	PatientID string `json:"patientId"`
	EntryID   string `json:"entryId"`
	Status    string `json:"status"`
}

func (r advanceRequest) entryID() string {
	if r.PatientID != "" {
		return strings.TrimSpace(r.PatientID)
	}
	return strings.TrimSpace(r.EntryID)
}
