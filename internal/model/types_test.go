package model

import "testing"

func TestValidPhone(t *testing.T) {
	valid := []string{"5551234567", "0001234567", "9999999999"}
	for _, phone := range valid {
		if !ValidPhone(phone) {
			t.Errorf("phone %q should be valid", phone)
		}
	}

	invalid := []string{"", "555123456", "55512345678", "555123456a", "+15551234567", "555 123 4567"}
	for _, phone := range invalid {
		if ValidPhone(phone) {
			t.Errorf("phone %q should be invalid", phone)
		}
	}
}
