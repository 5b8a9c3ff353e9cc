package dispatch

import "testing"

type stringerID string

func (s stringerID) String() string { return string(s) }

func TestIdentityFromLookup(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"bare string", "5511999999999", "5511999999999"},
		{"suffixed string", "5511999999999@c.us", "5511999999999"},
		{"record serialized wins", IdentityRecord{Serialized: "111@c.us", User: "222", ID: "333"}, "111"},
		{"record user before id", IdentityRecord{User: "222", ID: "333"}, "222"},
		{"record id only", &IdentityRecord{ID: "333"}, "333"},
		{"nil record pointer", (*IdentityRecord)(nil), ""},
		{"empty record", IdentityRecord{}, ""},
		{"map serialized", map[string]any{"_serialized": "444@c.us", "user": "555"}, "444"},
		{"map user", map[string]any{"user": "555", "server": "c.us"}, "555"},
		{"map nested id", map[string]any{"id": map[string]any{"user": "666"}}, "666"},
		{"map numeric id", map[string]any{"id": 777}, "777"},
		{"stringer", stringerID("888@s.whatsapp.net"), "888"},
		{"literal null", "null", ""},
		{"literal undefined", "undefined", ""},
		{"integer coerced", 999, "999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IdentityFromLookup(tc.in); got != tc.want {
				t.Fatalf("IdentityFromLookup(%#v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanNumber(t *testing.T) {
	cases := map[string]string{
		"5511999999999":       "5511999999999",
		" +5511999999999 ":    "5511999999999",
		"5511999999999@c.us":  "5511999999999",
		"120363000000@g.us":   "120363000000",
	}
	for in, want := range cases {
		if got := CleanNumber(in); got != want {
			t.Fatalf("CleanNumber(%q) = %q, want %q", in, got, want)
		}
	}
}
