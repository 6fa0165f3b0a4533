// internal/slips/slips.go
package slips

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cbroglie/mustache"
)

// StaffSlip is a printable notice template.
type StaffSlip struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Template string `json:"template"`
}

// SlipSetting ties a staff slip to a service point.
type SlipSetting struct {
	ID             string `json:"id"`
	PrintByDefault bool   `json:"printByDefault"`
}

// ServicePoint is the desk's service point configuration.
type ServicePoint struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Code       string        `json:"code,omitempty"`
	StaffSlips []SlipSetting `json:"staffSlips,omitempty"`
}

// PrintByDefault tells whether the print box of the named slip starts
// checked at this service point. A slip the service point has no setting
// for prints by default.
func PrintByDefault(sp *ServicePoint, slips []StaffSlip, name string) bool {
	if sp == nil {
		return true
	}
	var slipID string
	for _, s := range slips {
		if strings.EqualFold(s.Name, name) {
			slipID = s.ID
			break
		}
	}
	for _, setting := range sp.StaffSlips {
		if setting.ID == slipID && slipID != "" {
			return setting.PrintByDefault
		}
	}
	return true
}

// Find returns the slip with the given name.
func Find(slips []StaffSlip, name string) (*StaffSlip, bool) {
	for i := range slips {
		if strings.EqualFold(slips[i].Name, name) {
			return &slips[i], true
		}
	}
	return nil, false
}

// Render fills the {{section.field}} tags of a slip template from the staff
// slip context returned by check-in. Missing names render empty.
func Render(template string, context json.RawMessage) (string, error) {
	values := map[string]any{}
	if len(context) > 0 {
		if err := json.Unmarshal(context, &values); err != nil {
			return "", fmt.Errorf("decode staff slip context: %w", err)
		}
	}

	out, err := mustache.Render(template, values)
	if err != nil {
		return "", fmt.Errorf("render staff slip: %w", err)
	}
	return out, nil
}
